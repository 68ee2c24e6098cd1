package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/pca9634/internal/fade"
	"github.com/coreman2200/pca9634/model"
)

type Bus struct {
	Driver string `yaml:"driver"`           // "periph" | "d2r2" | "sim"
	Name   string `yaml:"name,omitempty"`   // periph bus name, e.g. "1"
	Number int    `yaml:"number,omitempty"` // /dev/i2c-N for d2r2
}

type Outputs struct {
	Inverted     bool   `yaml:"inverted"`
	Trigger      string `yaml:"trigger"`       // "stop" | "ack"
	Structure    string `yaml:"structure"`     // "open-drain" | "totem-pole"
	WhenDisabled string `yaml:"when_disabled"` // "zero" | "one" | "high-z"
}

type Effect struct {
	Mode    string  `yaml:"mode"` // "none" | "dim" | "blink"
	Ratio   float64 `yaml:"ratio,omitempty"`
	PeriodS float64 `yaml:"period_s,omitempty"`
	Duty    float64 `yaml:"duty,omitempty"`
}

type SubAddress struct {
	Slot int `yaml:"slot"` // 1..3
	Addr int `yaml:"addr"`
}

type AllCall struct {
	Enabled bool `yaml:"enabled"`
	Addr    int  `yaml:"addr,omitempty"`
}

type Channel struct {
	Index      int  `yaml:"index"`
	Brightness *int `yaml:"brightness,omitempty"` // 0..256
	Effect     bool `yaml:"effect,omitempty"`
}

type Config struct {
	Bus       Bus    `yaml:"bus"`
	Addr      int    `yaml:"addr"`
	ResetAddr int    `yaml:"reset_addr,omitempty"`
	OEPin     string `yaml:"oe_pin,omitempty"` // e.g. GPIO17

	Outputs      *Outputs     `yaml:"outputs,omitempty"`
	Effect       Effect       `yaml:"effect"`
	SubAddresses []SubAddress `yaml:"sub_addresses,omitempty"`
	AllCall      *AllCall     `yaml:"all_call,omitempty"`
	Channels     []Channel    `yaml:"channels,omitempty"`

	Fade *fade.Program `yaml:"fade,omitempty"`

	Listen   string `yaml:"listen,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default talks to the all-call address on the first periph bus.
func Default() *Config {
	return &Config{
		Bus:       Bus{Driver: "periph"},
		Addr:      0x70,
		ResetAddr: 0x03,
		Effect:    Effect{Mode: "none"},
		Listen:    ":8080",
		LogLevel:  "info",
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...interface{}) {
		errs = append(errs, errors.Errorf(format, args...).Error())
	}

	switch c.Bus.Driver {
	case "", "periph", "d2r2", "sim":
	default:
		add("bus.driver %q must be periph, d2r2 or sim", c.Bus.Driver)
	}
	if c.Addr < 0 || c.Addr > 0x7F {
		add("addr %#x must be a 7-bit address", c.Addr)
	}
	if c.ResetAddr < 0 || c.ResetAddr > 0x7F {
		add("reset_addr %#x must be a 7-bit address", c.ResetAddr)
	}
	if c.Outputs != nil {
		if _, err := ParseTrigger(c.Outputs.Trigger); err != nil {
			add("outputs.%v", err)
		}
		if _, err := ParseStructure(c.Outputs.Structure); err != nil {
			add("outputs.%v", err)
		}
		if _, err := ParseWhenDisabled(c.Outputs.WhenDisabled); err != nil {
			add("outputs.%v", err)
		}
	}
	switch c.Effect.Mode {
	case "", "none", "dim", "blink":
	default:
		add("effect.mode %q must be none, dim or blink", c.Effect.Mode)
	}
	for _, s := range c.SubAddresses {
		if s.Slot < 1 || s.Slot > 3 {
			add("sub_addresses: slot %d must be 1..3", s.Slot)
		}
		if s.Addr < 0 || s.Addr > 0x7F {
			add("sub_addresses: addr %#x must be a 7-bit address", s.Addr)
		}
	}
	if c.AllCall != nil && (c.AllCall.Addr < 0 || c.AllCall.Addr > 0x7F) {
		add("all_call.addr %#x must be a 7-bit address", c.AllCall.Addr)
	}
	seen := map[int]bool{}
	for _, ch := range c.Channels {
		if ch.Index < 0 || ch.Index >= int(model.Channels) {
			add("channels: index %d must be 0..7", ch.Index)
		}
		if seen[ch.Index] {
			add("channels: index %d listed twice", ch.Index)
		}
		seen[ch.Index] = true
		if ch.Brightness != nil && (*ch.Brightness < 0 || *ch.Brightness > 256) {
			add("channels: brightness %d of channel %d must be 0..256", *ch.Brightness, ch.Index)
		}
	}
	if c.Fade != nil {
		if err := c.Fade.Validate(); err != nil {
			add("fade: %v", err)
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func ParseTrigger(s string) (model.OutputChangeTrigger, error) {
	switch s {
	case "", "stop":
		return model.OnStop, nil
	case "ack":
		return model.OnAck, nil
	}
	return 0, errors.Errorf("trigger %q must be stop or ack", s)
}

func ParseStructure(s string) (model.OutputDriverStructure, error) {
	switch s {
	case "open-drain":
		return model.OpenDrain, nil
	case "", "totem-pole":
		return model.TotemPole, nil
	}
	return 0, errors.Errorf("structure %q must be open-drain or totem-pole", s)
}

func ParseWhenDisabled(s string) (model.OutputWhenDisabled, error) {
	switch s {
	case "zero":
		return model.Zero, nil
	case "", "one":
		return model.OneOrWeakHigh, nil
	case "high-z":
		return model.HighZ, nil
	}
	return 0, errors.Errorf("when_disabled %q must be zero, one or high-z", s)
}
