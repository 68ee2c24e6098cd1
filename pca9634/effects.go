package pca9634

import (
	"math"
	"time"

	"github.com/coreman2200/pca9634/model"
)

// MaxBrightness is the SetBrightness value that switches a channel fully on.
const MaxBrightness uint16 = 256

// ConfigureOutputs sets the output driver behavior in MODE2. The
// dimming/blinking selection is preserved.
//
// Changing outputs on STOP lets several PCA9634s latch together. LEDs with
// integrated Zener diodes must be driven OpenDrain.
func (d *Dev) ConfigureOutputs(inverted bool, trigger model.OutputChangeTrigger, structure model.OutputDriverStructure, output model.OutputWhenDisabled) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v byte
	if inverted {
		v |= 1 << 4
	}
	v |= (byte(trigger) & 0x01) << 3
	v |= (byte(structure) & 0x01) << 2
	v |= byte(output) & 0x03
	return d.updateRegister(model.RegMode2, func(old byte) byte {
		return old&model.Mode2DimBlink | v
	})
}

// ConfigureDimming selects group dimming and sets its ratio (0..1). A ratio
// of 0.5 halves the output Vrms. The effect only applies to channels with
// SetEffectEnabled.
func (d *Dev) ConfigureDimming(ratio float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.updateRegister(model.RegMode2, func(v byte) byte { return v &^ model.Mode2DimBlink }); err != nil {
		return err
	}
	return d.writeRegister(model.RegGrpPWM, groupPWM(ratio))
}

// ConfigureBlinking selects group blinking with the given period and duty
// cycle (0..1). Periods outside what GRPFREQ encodes (about 42ms to 10.67s)
// are clamped. The effect only applies to channels with SetEffectEnabled.
func (d *Dev) ConfigureBlinking(period time.Duration, dutyCycle float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.updateRegister(model.RegMode2, func(v byte) byte { return v | model.Mode2DimBlink }); err != nil {
		return err
	}
	if err := d.writeRegister(model.RegGrpPWM, groupPWM(dutyCycle)); err != nil {
		return err
	}
	return d.writeRegister(model.RegGrpFreq, groupFreq(period))
}

// SetBrightness sets the duty of channel (0..7) to value/256. MaxBrightness
// turns the channel fully on. While the channel's effect is enabled the
// maximum is 255. Other channels are ignored.
func (d *Dev) SetBrightness(channel int, value uint16) error {
	if !validChannel(channel) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := ledoutRegister(channel)
	ledout, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	old := model.LEDOutField(ledout, channel)
	limit := MaxBrightness
	if old == model.BrightnessWithDimBlink {
		limit = 0xFF
	}
	if value > limit {
		value = limit
	}

	next := model.BrightnessControl
	switch {
	case value == MaxBrightness:
		next = model.FullyOn
	case old == model.BrightnessWithDimBlink:
		next = model.BrightnessWithDimBlink
	}
	if next != old {
		if err := d.writeRegister(reg, model.SetLEDOutField(ledout, channel, next)); err != nil {
			return err
		}
	}
	if next != model.FullyOn {
		return d.writeRegister(model.RegPWM0+uint8(channel), byte(value))
	}
	return nil
}

// SetEffectEnabled makes channel (0..7) follow the group dimming or blinking
// set by ConfigureDimming or ConfigureBlinking. A fully on channel keeps full
// brightness by moving to PWM 0xFF. Other channels are ignored.
func (d *Dev) SetEffectEnabled(channel int, enabled bool) error {
	if !validChannel(channel) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := ledoutRegister(channel)
	ledout, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	old := model.LEDOutField(ledout, channel)
	if enabled {
		if old == model.FullyOn {
			if err := d.writeRegister(model.RegPWM0+uint8(channel), 0xFF); err != nil {
				return err
			}
		}
		if old != model.BrightnessWithDimBlink {
			return d.writeRegister(reg, model.SetLEDOutField(ledout, channel, model.BrightnessWithDimBlink))
		}
		return nil
	}
	if old == model.BrightnessWithDimBlink {
		return d.writeRegister(reg, model.SetLEDOutField(ledout, channel, model.BrightnessControl))
	}
	return nil
}

// Mode reads the LEDOUT mode of channel. Out of range channels read as Off
// without bus traffic.
func (d *Dev) Mode(channel int) (model.LEDMode, error) {
	if !validChannel(channel) {
		return model.Off, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ledout, err := d.readRegister(ledoutRegister(channel))
	if err != nil {
		return model.Off, err
	}
	return model.LEDOutField(ledout, channel), nil
}

// Brightness reads back the level of channel on the SetBrightness scale:
// 0 when off, MaxBrightness when fully on, the PWM duty otherwise.
func (d *Dev) Brightness(channel int) (uint16, error) {
	if !validChannel(channel) {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ledout, err := d.readRegister(ledoutRegister(channel))
	if err != nil {
		return 0, err
	}
	switch model.LEDOutField(ledout, channel) {
	case model.Off:
		return 0, nil
	case model.FullyOn:
		return MaxBrightness, nil
	}
	v, err := d.readRegister(model.RegPWM0 + uint8(channel))
	return uint16(v), err
}

func validChannel(channel int) bool {
	return channel >= 0 && channel < int(model.Channels)
}

func ledoutRegister(channel int) uint8 {
	return model.RegLEDOut0 + uint8(channel/4)
}

// groupPWM encodes a 0..1 ratio into GRPPWM.
func groupPWM(ratio float64) byte {
	return byte(clamp(math.Round(clamp(ratio, 0, 1)*256), 0, 255))
}

// groupFreq encodes a blink period into GRPFREQ: period = (GRPFREQ+1)/24 s.
func groupFreq(period time.Duration) byte {
	return byte(math.Round(clamp(model.BlinkRate*period.Seconds()-1, 0, 255)))
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if !(v >= lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
