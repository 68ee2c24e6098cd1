package bus

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/pca9634/pca9634/pca9634test"
)

const (
	Periph = "periph"
	D2r2   = "d2r2"
	Sim    = "sim"
)

// Config selects the I2C implementation.
type Config struct {
	// Driver is one of Periph, D2r2 or Sim. Empty means Periph.
	Driver string
	// Name is the periph bus name, e.g. "/dev/i2c-1" or "1". Empty selects
	// the first registered bus.
	Name string
	// Number is the /dev/i2c-N bus number used by D2r2.
	Number int
	// SimAddr is the address the simulated chip answers.
	SimAddr uint16
	// Fallback opens a simulated chip when the periph bus can't be opened.
	Fallback bool
}

// Open returns the selected bus and the name of the driver actually used.
func Open(cfg Config, log zerolog.Logger) (i2c.BusCloser, string, error) {
	switch cfg.Driver {
	case "", Periph:
		b, err := openPeriph(cfg.Name)
		if err == nil {
			return b, Periph, nil
		}
		if !cfg.Fallback {
			return nil, "", err
		}
		log.Warn().Err(err).Str("bus", cfg.Name).Msg("failed to find an I2C bus, simulating the chip")
		return pca9634test.NewChip(cfg.SimAddr), Sim, nil

	case D2r2:
		b, err := NewD2r2(cfg.Number)
		if err != nil {
			return nil, "", err
		}
		return b, D2r2, nil

	case Sim:
		return pca9634test.NewChip(cfg.SimAddr), Sim, nil
	}
	return nil, "", errors.Errorf("bus: unknown driver %q", cfg.Driver)
}

func openPeriph(name string) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "bus: host init")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "bus: open %q", name)
	}
	return b, nil
}

// OEPin looks up the GPIO wired to the chip's ~OE input, e.g. "GPIO17".
func OEPin(name string) (gpio.PinOut, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "bus: host init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("bus: no gpio pin named %q", name)
	}
	return p, nil
}
