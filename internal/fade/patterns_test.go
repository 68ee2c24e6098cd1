package fade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternsValidate(t *testing.T) {
	for _, name := range Patterns {
		p, err := Pattern(name)
		require.NoError(t, err, name)
		assert.NoError(t, p.Validate(), name)
	}
	_, err := Pattern("plane_z")
	assert.Error(t, err)
}

func TestIndexSweep(t *testing.T) {
	var lit [channels]uint16
	p := NewPlayer(Hooks{SetBrightness: func(ch int, v uint16) error {
		lit[ch] = v
		return nil
	}})
	prog, err := Pattern(IndexSweep)
	require.NoError(t, err)
	require.NoError(t, p.Load(prog))
	p.Start()

	on := func() []int {
		var out []int
		for ch, v := range lit {
			if v == 256 {
				out = append(out, ch)
			}
		}
		return out
	}
	p.Tick(0.25)
	assert.Equal(t, []int{0}, on())
	p.Tick(0.5)
	assert.Equal(t, []int{1}, on())
	p.Tick(3)
	assert.Equal(t, []int{7}, on())
	p.Tick(1)
	assert.Empty(t, on())
	assert.Equal(t, Idle, p.State)
}
