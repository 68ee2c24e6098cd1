package bus

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/pca9634/pca9634/pca9634test"
)

func TestOpenSim(t *testing.T) {
	b, used, err := Open(Config{Driver: Sim, SimAddr: 0x22}, zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, Sim, used)
	chip, ok := b.(*pca9634test.Chip)
	require.True(t, ok)
	assert.Equal(t, uint16(0x22), chip.Addr)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, _, err := Open(Config{Driver: "spi"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenPeriphFallsBackToSim(t *testing.T) {
	cfg := Config{Driver: Periph, Name: "no-such-i2c-bus", SimAddr: 0x10}

	_, _, err := Open(cfg, zerolog.Nop())
	assert.Error(t, err)

	cfg.Fallback = true
	b, used, err := Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Sim, used)
	assert.NoError(t, b.Close())
}

func TestOEPinUnknown(t *testing.T) {
	_, err := OEPin("NO_SUCH_PIN")
	assert.Error(t, err)
}
