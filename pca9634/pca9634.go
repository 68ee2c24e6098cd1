// Package pca9634 controls an NXP PCA9634 8-channel I2C LED driver.
//
// Every call re-reads the registers it depends on; the Dev keeps no shadow
// copy of the chip state.
//
// # Datasheet
//
// https://www.nxp.com/docs/en/data-sheet/PCA9634.pdf
package pca9634

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/coreman2200/pca9634/model"
)

const (
	// AllCallAddr8 is the factory all-call address in its 8-bit (write) form.
	AllCallAddr8 = 0xE0
	// DefaultAddr is the 7-bit form of AllCallAddr8. Every PCA9634 on a bus
	// answers it after power-up.
	DefaultAddr uint16 = AllCallAddr8 >> 1
	// ResetAddr is the SWRST call address shared by all PCA9634s.
	ResetAddr uint16 = 0x03

	// WakeDelay is how long the oscillator needs after SLEEP is cleared.
	WakeDelay = 500 * time.Microsecond
)

// swrst is the software reset byte sequence sent to ResetAddr.
var swrst = []byte{0xA5, 0x5A}

var ErrNoOEPin = errors.New("pca9634: no output enable pin configured")

// Opts holds the construction parameters of a Dev.
type Opts struct {
	// Addr is the 7-bit chip address. Zero means DefaultAddr.
	Addr uint16
	// ResetAddr is where Reset sends the SWRST sequence. Zero means ResetAddr.
	ResetAddr uint16
	// OE optionally drives the active-low ~OE pin.
	OE gpio.PinOut
	// Logger receives register traffic at debug level. Nil disables logging.
	Logger *zerolog.Logger
}

// DefaultOpts talks to the all-call address.
var DefaultOpts = Opts{Addr: DefaultAddr, ResetAddr: ResetAddr}

// Dev is a handle to one PCA9634.
//
// A Dev serializes its own read-modify-write sequences. Several Devs bound
// to the same physical chip must be serialized by the caller.
type Dev struct {
	mu        sync.Mutex
	d         i2c.Dev
	resetAddr uint16
	oe        gpio.PinOut
	log       zerolog.Logger
	closer    io.Closer
}

// New returns a Dev bound to bus. No bus traffic happens until the first
// call.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if bus == nil {
		return nil, errors.New("pca9634: nil bus")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	addr := opts.Addr
	if addr == 0 {
		addr = DefaultAddr
	}
	if addr > 0x7F {
		return nil, errors.Errorf("pca9634: address %#x is not a 7-bit address", addr)
	}
	rst := opts.ResetAddr
	if rst == 0 {
		rst = ResetAddr
	}
	l := zerolog.Nop()
	if opts.Logger != nil {
		l = opts.Logger.With().Str("dev", "pca9634").Hex("addr", []byte{byte(addr)}).Logger()
	}
	return &Dev{
		d:         i2c.Dev{Bus: bus, Addr: addr},
		resetAddr: rst,
		oe:        opts.OE,
		log:       l,
	}, nil
}

// Open initializes the host drivers, opens the named I2C bus and binds a Dev
// to it. An empty name selects the first registered bus. Close releases the
// bus.
func Open(name string, opts *Opts) (*Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "pca9634: host init")
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "pca9634: open i2c bus %q", name)
	}
	d, err := New(b, opts)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	d.closer = b
	return d, nil
}

// Close releases the bus if it was opened by Open.
func (d *Dev) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

func (d *Dev) Addr() uint16 {
	return d.d.Addr
}

func (d *Dev) String() string {
	return fmt.Sprintf("pca9634{%s@%#02x}", d.d.Bus, d.d.Addr)
}

// Halt puts the chip to sleep. Implements conn.Resource.
func (d *Dev) Halt() error {
	return d.Sleep()
}

// Reset sends the software reset sequence. All registers of every PCA9634
// on the bus return to their power-up values. The error is non-nil when the
// transmission failed.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Debug().Hex("to", []byte{byte(d.resetAddr)}).Msg("swrst")
	if err := d.d.Bus.Tx(d.resetAddr, swrst, nil); err != nil {
		return errors.Wrap(err, "pca9634: software reset")
	}
	return nil
}

// Sleep stops the oscillator. Don't drive the outputs while sleeping.
func (d *Dev) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateRegister(model.RegMode1, func(v byte) byte { return v | model.Mode1Sleep })
}

// Wake restarts the oscillator and returns once WakeDelay has elapsed, so
// the chip is usable as soon as Wake returns.
func (d *Dev) Wake() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.updateRegister(model.RegMode1, func(v byte) byte { return v &^ model.Mode1Sleep }); err != nil {
		return err
	}
	time.Sleep(WakeDelay)
	return nil
}

func (d *Dev) Sleeping() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readRegister(model.RegMode1)
	return v&model.Mode1Sleep != 0, err
}

// SetOutputEnabled drives ~OE low (enabled) or high. MODE2 OUTNE decides
// what disabled outputs do.
func (d *Dev) SetOutputEnabled(enabled bool) error {
	if d.oe == nil {
		return ErrNoOEPin
	}
	l := gpio.High
	if enabled {
		l = gpio.Low
	}
	if err := d.oe.Out(l); err != nil {
		return errors.Wrapf(err, "pca9634: drive %s", d.oe)
	}
	return nil
}

// Snapshot reads registers 0x00..0x11.
func (d *Dev) Snapshot() (model.Registers, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := make([]byte, model.RegCount)
	for i := range b {
		v, err := d.readRegister(uint8(i))
		if err != nil {
			return model.Registers{}, err
		}
		b[i] = v
	}
	return model.FromBytes(b), nil
}

// updateRegister is a read-modify-write of a single register. Must be called
// with mu held.
func (d *Dev) updateRegister(reg uint8, f func(byte) byte) error {
	v, err := d.readRegister(reg)
	if err != nil {
		return err
	}
	return d.writeRegister(reg, f(v))
}

func (d *Dev) readRegister(reg uint8) (byte, error) {
	reg &= model.RegMask
	rx := [1]byte{}
	if err := d.d.Tx([]byte{reg}, rx[:]); err != nil {
		return 0, errors.Wrapf(err, "pca9634: read register %#02x", reg)
	}
	d.log.Debug().Hex("reg", []byte{reg}).Hex("val", rx[:]).Msg("read")
	return rx[0], nil
}

func (d *Dev) writeRegister(reg uint8, v byte) error {
	reg &= model.RegMask
	d.log.Debug().Hex("reg", []byte{reg}).Hex("val", []byte{v}).Msg("write")
	if err := d.d.Tx([]byte{reg, v}, nil); err != nil {
		return errors.Wrapf(err, "pca9634: write register %#02x", reg)
	}
	return nil
}
