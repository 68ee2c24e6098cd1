// Package model decodes the PCA9634 register image.
package model

import (
	"math"
	"time"
)

const (
	Channels uint8 = 8

	RegMode1      uint8 = 0x00
	RegMode2      uint8 = 0x01
	RegPWM0       uint8 = 0x02
	RegGrpPWM     uint8 = 0x0A
	RegGrpFreq    uint8 = 0x0B
	RegLEDOut0    uint8 = 0x0C
	RegSubAdr1    uint8 = 0x0E
	RegAllCallAdr uint8 = 0x11

	// RegCount is the number of documented registers (0x00..0x11).
	RegCount = int(RegAllCallAdr) + 1
	// RegMask limits register addresses to the 5-bit register space.
	RegMask uint8 = 0x1F
)

const (
	Mode1Sleep   byte = 0x10
	Mode1AllCall byte = 0x01

	Mode2DimBlink byte = 0x20
)

// BlinkRate is the number of GRPFREQ steps per second: period = (GRPFREQ+1) / 24 s.
const BlinkRate = 24

// Registers is a copy of the chip's documented register file.
type Registers struct {
	Mode1      byte
	Mode2      byte
	PWM        [8]byte
	GrpPWM     byte
	GrpFreq    byte
	LEDOut     [2]byte
	SubAddr    [3]byte
	AllCallAdr byte
}

// FromBytes maps a 0x00..0x11 register dump onto Registers. Missing trailing
// bytes stay zero.
func FromBytes(b []byte) Registers {
	var full [RegCount]byte
	copy(full[:], b)

	var r Registers
	r.Mode1 = full[RegMode1]
	r.Mode2 = full[RegMode2]
	copy(r.PWM[:], full[RegPWM0:RegPWM0+Channels])
	r.GrpPWM = full[RegGrpPWM]
	r.GrpFreq = full[RegGrpFreq]
	copy(r.LEDOut[:], full[RegLEDOut0:RegLEDOut0+2])
	copy(r.SubAddr[:], full[RegSubAdr1:RegSubAdr1+3])
	r.AllCallAdr = full[RegAllCallAdr]
	return r
}

// Bytes is the inverse of FromBytes.
func (r Registers) Bytes() []byte {
	b := make([]byte, RegCount)
	b[RegMode1] = r.Mode1
	b[RegMode2] = r.Mode2
	copy(b[RegPWM0:], r.PWM[:])
	b[RegGrpPWM] = r.GrpPWM
	b[RegGrpFreq] = r.GrpFreq
	copy(b[RegLEDOut0:], r.LEDOut[:])
	copy(b[RegSubAdr1:], r.SubAddr[:])
	b[RegAllCallAdr] = r.AllCallAdr
	return b
}

func (r Registers) Sleeping() bool {
	return r.Mode1&Mode1Sleep != 0
}

// SubAddressEnabled reports whether sub-address slot (1..3) is answered.
func (r Registers) SubAddressEnabled(slot int) bool {
	if slot < 1 || slot > 3 {
		return false
	}
	return r.Mode1&(0x08>>uint(slot-1)) != 0
}

// SubAddress returns the 7-bit address held in slot (1..3).
func (r Registers) SubAddress(slot int) uint8 {
	if slot < 1 || slot > 3 {
		return 0
	}
	return r.SubAddr[slot-1] >> 1
}

func (r Registers) AllCallEnabled() bool {
	return r.Mode1&Mode1AllCall != 0
}

// AllCallAddress returns the 7-bit all-call address.
func (r Registers) AllCallAddress() uint8 {
	return r.AllCallAdr >> 1
}

// Blinking reports whether GRPPWM/GRPFREQ act as a blink duty and period
// rather than a dimming ratio.
func (r Registers) Blinking() bool {
	return r.Mode2&Mode2DimBlink != 0
}

func (r Registers) Inverted() bool {
	return field(r.Mode2, 4, 1) == 1
}

func (r Registers) Trigger() OutputChangeTrigger {
	return OutputChangeTrigger(field(r.Mode2, 3, 1))
}

func (r Registers) Structure() OutputDriverStructure {
	return OutputDriverStructure(field(r.Mode2, 2, 1))
}

func (r Registers) WhenDisabled() OutputWhenDisabled {
	return OutputWhenDisabled(field(r.Mode2, 0, 2))
}

// GroupRatio is GRPPWM as a fraction of 256.
func (r Registers) GroupRatio() float64 {
	return float64(r.GrpPWM) / 256
}

func (r Registers) BlinkPeriod() time.Duration {
	return time.Duration((int64(r.GrpFreq) + 1) * int64(time.Second) / BlinkRate)
}

// Mode returns the LEDOUT mode of channel. Out of range channels read as Off.
func (r Registers) Mode(channel int) LEDMode {
	if channel < 0 || channel >= int(Channels) {
		return Off
	}
	return LEDOutField(r.LEDOut[channel/4], channel)
}

// Level returns the channel's effective individual level on the 0..256
// scale: 0 when off, 256 when fully on, otherwise its PWM duty.
func (r Registers) Level(channel int) uint16 {
	switch r.Mode(channel) {
	case Off:
		return 0
	case FullyOn:
		return 256
	}
	return uint16(r.PWM[channel])
}

// Channel is the decoded state of one output.
type Channel struct {
	Index  int     `json:"index"`
	Mode   string  `json:"mode"`
	Level  uint16  `json:"level"`
	Duty   float64 `json:"duty"`
	Effect bool    `json:"effect"`
}

func (r Registers) Channels() []Channel {
	out := make([]Channel, 0, Channels)
	for i := 0; i < int(Channels); i++ {
		lvl := r.Level(i)
		out = append(out, Channel{
			Index:  i,
			Mode:   r.Mode(i).String(),
			Level:  lvl,
			Duty:   math.Min(float64(lvl)/256, 1),
			Effect: r.Mode(i) == BrightnessWithDimBlink,
		})
	}
	return out
}

// Status is a JSON friendly view of Registers.
type Status struct {
	Sleeping     bool      `json:"sleeping"`
	Blinking     bool      `json:"blinking"`
	GroupRatio   float64   `json:"group_ratio"`
	BlinkPeriodS float64   `json:"blink_period_s"`
	Inverted     bool      `json:"inverted"`
	Trigger      string    `json:"trigger"`
	Structure    string    `json:"structure"`
	WhenDisabled string    `json:"when_disabled"`
	SubAddresses []int     `json:"sub_addresses"`
	AllCall      int       `json:"all_call,omitempty"`
	Channels     []Channel `json:"channels"`
}

func (r Registers) Status() Status {
	s := Status{
		Sleeping:     r.Sleeping(),
		Blinking:     r.Blinking(),
		GroupRatio:   r.GroupRatio(),
		BlinkPeriodS: r.BlinkPeriod().Seconds(),
		Inverted:     r.Inverted(),
		Trigger:      r.Trigger().String(),
		Structure:    r.Structure().String(),
		WhenDisabled: r.WhenDisabled().String(),
		SubAddresses: []int{},
		Channels:     r.Channels(),
	}
	for slot := 1; slot <= 3; slot++ {
		if r.SubAddressEnabled(slot) {
			s.SubAddresses = append(s.SubAddresses, int(r.SubAddress(slot)))
		}
	}
	if r.AllCallEnabled() {
		s.AllCall = int(r.AllCallAddress())
	}
	return s
}
