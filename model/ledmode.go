package model

import "strconv"

// LEDMode is the 2-bit LEDOUT field selecting how a channel is driven.
type LEDMode byte

const (
	Off LEDMode = iota
	FullyOn
	// The channel is driven by its own PWM register.
	BrightnessControl
	// The channel is driven by its own PWM register AND the group
	// dimming/blinking settings.
	BrightnessWithDimBlink
)

func (m LEDMode) String() string {
	switch m {
	case Off:
		return "off"
	case FullyOn:
		return "on"
	case BrightnessControl:
		return "pwm"
	case BrightnessWithDimBlink:
		return "pwm+group"
	}
	return "LEDMode(" + strconv.Itoa(int(m)) + ")"
}

// OutputChangeTrigger selects when outputs latch new values (MODE2 OCH).
type OutputChangeTrigger byte

const (
	OnStop OutputChangeTrigger = iota
	OnAck
)

func (t OutputChangeTrigger) String() string {
	if t == OnAck {
		return "ack"
	}
	return "stop"
}

// OutputDriverStructure selects the final transistor configuration (MODE2 OUTDRV).
type OutputDriverStructure byte

const (
	// LEDs with integrated Zener diodes must be driven open-drain.
	OpenDrain OutputDriverStructure = iota
	TotemPole
)

func (s OutputDriverStructure) String() string {
	if s == TotemPole {
		return "totem-pole"
	}
	return "open-drain"
}

// OutputWhenDisabled is the output state while ~OE is high (MODE2 OUTNE).
type OutputWhenDisabled byte

const (
	Zero OutputWhenDisabled = iota
	OneOrWeakHigh
	HighZ
)

func (o OutputWhenDisabled) String() string {
	switch o {
	case Zero:
		return "zero"
	case OneOrWeakHigh:
		return "one"
	case HighZ:
		return "high-z"
	}
	return "OutputWhenDisabled(" + strconv.Itoa(int(o)) + ")"
}

func field(v byte, shift, width uint8) byte {
	var mask byte = (1<<width - 1) << shift
	return (v & mask) >> shift
}

func setField(v byte, n byte, shift, width uint8) byte {
	var mask byte = (1<<width - 1) << shift
	return (v &^ mask) | ((n << shift) & mask)
}

// LEDOutField returns the mode stored for channel in its LEDOUT register
// value.
func LEDOutField(ledout byte, channel int) LEDMode {
	return LEDMode(field(ledout, uint8(channel&0x03)<<1, 2))
}

// SetLEDOutField returns ledout with channel's 2-bit field replaced by m.
func SetLEDOutField(ledout byte, channel int, m LEDMode) byte {
	return setField(ledout, byte(m), uint8(channel&0x03)<<1, 2)
}
