//go:build linux

package bus

import (
	"fmt"
	"sync"

	d2i2c "github.com/d2r2/go-i2c"
	d2log "github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

// D2r2Bus adapts github.com/d2r2/go-i2c to periph's i2c.Bus. d2r2 binds a
// file descriptor to one slave address, so one handle is opened per target
// address on first use.
type D2r2Bus struct {
	mu   sync.Mutex
	num  int
	devs map[uint16]*d2i2c.I2C
}

func NewD2r2(num int) (*D2r2Bus, error) {
	if num < 0 {
		return nil, errors.Errorf("bus: invalid i2c bus number %d", num)
	}
	// d2r2 logs every transfer at debug level.
	_ = d2log.ChangePackageLogLevel("i2c", d2log.InfoLevel)
	return &D2r2Bus{num: num, devs: map[uint16]*d2i2c.I2C{}}, nil
}

func (b *D2r2Bus) String() string {
	return fmt.Sprintf("d2r2-i2c-%d", b.num)
}

// Tx writes w then reads r as two transfers, the way d2r2 does register
// reads.
func (b *D2r2Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	dev, err := b.dev(addr)
	if err != nil {
		return err
	}
	if len(w) > 0 {
		n, err := dev.WriteBytes(w)
		if err != nil {
			return errors.Wrapf(err, "bus: write to %#02x", addr)
		}
		if n != len(w) {
			return errors.Errorf("bus: wrote %d bytes to %#02x, expected %d", n, addr, len(w))
		}
	}
	if len(r) > 0 {
		n, err := dev.ReadBytes(r)
		if err != nil {
			return errors.Wrapf(err, "bus: read from %#02x", addr)
		}
		if n != len(r) {
			return errors.Errorf("bus: read %d bytes from %#02x, expected %d", n, addr, len(r))
		}
	}
	return nil
}

// SetSpeed is not supported by d2r2; the kernel driver's speed applies.
func (b *D2r2Bus) SetSpeed(f physic.Frequency) error {
	return errors.Errorf("bus: %s can't set speed to %s", b, f)
}

func (b *D2r2Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for addr, dev := range b.devs {
		if err := dev.Close(); err != nil && first == nil {
			first = err
		}
		delete(b.devs, addr)
	}
	return first
}

func (b *D2r2Bus) dev(addr uint16) (*d2i2c.I2C, error) {
	if dev, ok := b.devs[addr]; ok {
		return dev, nil
	}
	if addr > 0x7F {
		return nil, errors.Errorf("bus: %#x is not a 7-bit address", addr)
	}
	dev, err := d2i2c.NewI2C(uint8(addr), b.num)
	if err != nil {
		return nil, errors.Wrapf(err, "bus: open i2c-%d@%#02x", b.num, addr)
	}
	b.devs[addr] = dev
	return dev, nil
}
