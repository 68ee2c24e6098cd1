// Package pca9634test implements an in-memory PCA9634 usable as an i2c.Bus.
package pca9634test

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/pca9634/model"
)

// PowerUp is the register image after power-up or a software reset.
var PowerUp = model.Registers{
	Mode1:      0x91,
	Mode2:      0x05,
	GrpPWM:     0xFF,
	SubAddr:    [3]byte{0xE2, 0xE4, 0xE8},
	AllCallAdr: 0xE0,
}

var swrst = []byte{0xA5, 0x5A}

// ErrNACK is returned for transactions no device acknowledges.
var ErrNACK = errors.New("pca9634test: no acknowledge")

// Chip emulates the register file of one PCA9634 and the addresses it
// answers. It records every acknowledged transaction.
type Chip struct {
	mu sync.Mutex

	// Addr is the hardware address set by the A0..A6 pins.
	Addr uint16
	// ResetAddr receives the software reset sequence.
	ResetAddr uint16
	// Err, when set, fails every transaction.
	Err error

	regs    [32]byte
	ptr     byte
	autoInc bool
	ops     []i2ctest.IO
}

// NewChip returns a chip at addr holding the PowerUp registers.
func NewChip(addr uint16) *Chip {
	c := &Chip{Addr: addr, ResetAddr: 0x03}
	c.reset()
	return c
}

func (c *Chip) String() string {
	return fmt.Sprintf("pca9634test@%#02x", c.Addr)
}

// Tx implements i2c.Bus.
func (c *Chip) Tx(addr uint16, w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if addr == c.ResetAddr {
		if !bytes.Equal(w, swrst) || len(r) != 0 {
			return ErrNACK
		}
		c.record(addr, w, r)
		c.reset()
		return nil
	}
	if !c.answers(addr) {
		return ErrNACK
	}
	if len(w) > 0 {
		c.ptr = w[0] & model.RegMask
		c.autoInc = w[0]&0x80 != 0
		for _, b := range w[1:] {
			c.regs[c.ptr] = b
			c.advance()
		}
	}
	for i := range r {
		r[i] = c.regs[c.ptr]
		c.advance()
	}
	c.record(addr, w, r)
	return nil
}

// SetSpeed implements i2c.Bus.
func (c *Chip) SetSpeed(f physic.Frequency) error {
	return nil
}

// Close implements i2c.BusCloser.
func (c *Chip) Close() error {
	return nil
}

// Registers returns a copy of the documented registers.
func (c *Chip) Registers() model.Registers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.FromBytes(c.regs[:model.RegCount])
}

// SetRegisters overwrites the documented registers.
func (c *Chip) SetRegisters(r model.Registers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.regs[:], r.Bytes())
}

// Ops returns the recorded transactions.
func (c *Chip) Ops() []i2ctest.IO {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]i2ctest.IO, len(c.ops))
	copy(out, c.ops)
	return out
}

// Writes returns the recorded register writes as [register, value] pairs.
func (c *Chip) Writes() [][2]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][2]byte
	for _, op := range c.ops {
		if op.Addr != c.ResetAddr && len(op.W) >= 2 {
			out = append(out, [2]byte{op.W[0] & model.RegMask, op.W[1]})
		}
	}
	return out
}

// ResetOps forgets the recorded transactions.
func (c *Chip) ResetOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

func (c *Chip) reset() {
	c.regs = [32]byte{}
	copy(c.regs[:], PowerUp.Bytes())
	c.ptr = 0
}

// advance moves the register pointer when the control byte had AI2 set.
// Without auto-increment it stays put.
func (c *Chip) advance() {
	if !c.autoInc {
		return
	}
	c.ptr = (c.ptr + 1) % byte(model.RegCount)
}

func (c *Chip) answers(addr uint16) bool {
	if addr == c.Addr {
		return true
	}
	r := model.FromBytes(c.regs[:model.RegCount])
	for slot := 1; slot <= 3; slot++ {
		if r.SubAddressEnabled(slot) && uint16(r.SubAddress(slot)) == addr {
			return true
		}
	}
	return r.AllCallEnabled() && uint16(r.AllCallAddress()) == addr
}

func (c *Chip) record(addr uint16, w, r []byte) {
	c.ops = append(c.ops, i2ctest.IO{
		Addr: addr,
		W:    append([]byte(nil), w...),
		R:    append([]byte(nil), r...),
	})
}

var _ i2c.BusCloser = &Chip{}
