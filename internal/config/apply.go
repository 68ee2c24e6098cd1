package config

import (
	"time"

	"github.com/pkg/errors"

	"github.com/coreman2200/pca9634/pca9634"
)

// Apply pushes the chip setup described by c to dev: wake, output drivers,
// addresses, group effect, then channels.
func Apply(dev *pca9634.Dev, c *Config) error {
	if err := dev.Wake(); err != nil {
		return err
	}
	if o := c.Outputs; o != nil {
		trig, err := ParseTrigger(o.Trigger)
		if err != nil {
			return errors.Wrap(err, "config")
		}
		st, err := ParseStructure(o.Structure)
		if err != nil {
			return errors.Wrap(err, "config")
		}
		wd, err := ParseWhenDisabled(o.WhenDisabled)
		if err != nil {
			return errors.Wrap(err, "config")
		}
		if err := dev.ConfigureOutputs(o.Inverted, trig, st, wd); err != nil {
			return err
		}
	}
	for _, s := range c.SubAddresses {
		if err := dev.SetSubAddress(s.Slot, uint8(s.Addr)); err != nil {
			return err
		}
	}
	if a := c.AllCall; a != nil {
		var err error
		if a.Enabled {
			err = dev.SetAllCallAddress(uint8(a.Addr))
		} else {
			err = dev.DisableAllCallAddress()
		}
		if err != nil {
			return err
		}
	}
	switch c.Effect.Mode {
	case "dim":
		if err := dev.ConfigureDimming(c.Effect.Ratio); err != nil {
			return err
		}
	case "blink":
		period := time.Duration(c.Effect.PeriodS * float64(time.Second))
		if err := dev.ConfigureBlinking(period, c.Effect.Duty); err != nil {
			return err
		}
	}
	for _, ch := range c.Channels {
		if ch.Brightness != nil {
			if err := dev.SetBrightness(ch.Index, uint16(*ch.Brightness)); err != nil {
				return err
			}
		}
		if err := dev.SetEffectEnabled(ch.Index, ch.Effect); err != nil {
			return err
		}
	}
	return nil
}
