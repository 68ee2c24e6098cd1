//go:build !linux

package bus

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

type D2r2Bus struct{}

func NewD2r2(num int) (*D2r2Bus, error) {
	return nil, errors.New("bus: d2r2 driver not supported on this platform")
}

func (b *D2r2Bus) String() string                    { return "d2r2" }
func (b *D2r2Bus) Tx(addr uint16, w, r []byte) error { return errors.New("bus: d2r2 driver not supported on this platform") }
func (b *D2r2Bus) SetSpeed(f physic.Frequency) error { return nil }
func (b *D2r2Bus) Close() error                      { return nil }
