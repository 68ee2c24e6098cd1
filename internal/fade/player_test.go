package fade

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEval(t *testing.T) {
	env := Envelope{Keys: []Keyframe{
		{T: 0, V: 0},
		{T: 10, V: 10},
	}}
	tests := []struct {
		t, want float64
	}{
		{-1, 0},
		{0, 0},
		{5, 5},
		{10, 10},
		{11, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, env.Eval(tt.t), "t=%v", tt.t)
	}

	assert.Equal(t, 0.0, Envelope{}.Eval(3))
	assert.Equal(t, 7.0, Envelope{Keys: []Keyframe{{T: 2, V: 7}}}.Eval(0))
}

func TestEnvelopeEase(t *testing.T) {
	for _, kind := range []string{"linear", "smooth", "cubic"} {
		env := Envelope{Keys: []Keyframe{{T: 0, V: 0, Ease: kind}, {T: 1, V: 100}}}
		assert.InDelta(t, 50, env.Eval(0.5), 1e-9, kind)
		assert.Equal(t, 0.0, env.Eval(0), kind)
		assert.Equal(t, 100.0, env.Eval(1), kind)
	}
	smooth := Envelope{Keys: []Keyframe{{T: 0, V: 0, Ease: "smooth"}, {T: 1, V: 100}}}
	assert.Less(t, smooth.Eval(0.25), 25.0)
	assert.True(t, Envelope{Keys: []Keyframe{{T: 0, V: 0}, {T: 1, V: 1}}}.On(0.5))
}

func TestProgramValidate(t *testing.T) {
	assert.Error(t, Program{}.Validate())
	assert.Error(t, Program{Clips: []Clip{{Name: "a"}}}.Validate())
	assert.Error(t, Program{Clips: []Clip{{Name: "a", DurationS: 1, Levels: map[int]Envelope{8: {}}}}}.Validate())
	assert.NoError(t, Program{Clips: []Clip{{Name: "a", DurationS: 1, Levels: map[int]Envelope{7: {}}}}}.Validate())
}

type call struct {
	ch int
	v  uint16
}

func recorder() (*[]call, *[]call, Hooks) {
	var levels, effects []call
	h := Hooks{
		SetBrightness: func(ch int, v uint16) error {
			levels = append(levels, call{ch, v})
			return nil
		},
		SetEffect: func(ch int, on bool) error {
			v := uint16(0)
			if on {
				v = 1
			}
			effects = append(effects, call{ch, v})
			return nil
		},
	}
	return &levels, &effects, h
}

func ramp() Program {
	return Program{
		Version: "fade.v1",
		Clips: []Clip{
			{
				Name:      "up",
				DurationS: 2,
				Levels: map[int]Envelope{
					0: {Keys: []Keyframe{{T: 2, V: 256}, {T: 0, V: 0}}},
					1: {Keys: []Keyframe{{T: 0, V: 40}}},
				},
				Effects: map[int]Envelope{
					0: {Keys: []Keyframe{{T: 0, V: 0}, {T: 2, V: 1}}},
				},
			},
			{
				Name:      "hold",
				DurationS: 1,
				Levels:    map[int]Envelope{0: {Keys: []Keyframe{{T: 0, V: 128}}}},
			},
		},
	}
}

func TestPlayerChangeOnly(t *testing.T) {
	levels, effects, h := recorder()
	p := NewPlayer(h)
	require.NoError(t, p.Load(ramp()))

	p.Start()
	assert.ElementsMatch(t, []call{{0, 0}, {1, 40}}, *levels)
	assert.Equal(t, []call{{0, 0}}, *effects)

	*levels, *effects = nil, nil
	p.Tick(0.5)
	assert.Equal(t, []call{{0, 64}}, *levels)
	assert.Empty(t, *effects)

	*levels = nil
	p.Tick(0.5)
	assert.Equal(t, []call{{0, 128}}, *levels)
	assert.Equal(t, []call{{0, 1}}, *effects)
}

func TestPlayerAdvancesAndEnds(t *testing.T) {
	levels, _, h := recorder()
	p := NewPlayer(h)
	require.NoError(t, p.Load(ramp()))
	p.Start()

	*levels = nil
	p.Tick(2.5)
	// "up" lands on 256, then "hold" sets 128.
	assert.Equal(t, []call{{0, 256}, {0, 128}}, *levels)
	assert.Equal(t, Running, p.State)

	p.Tick(1)
	assert.Equal(t, Idle, p.State)
	assert.Equal(t, 0.0, p.Position())
}

func TestPlayerLoops(t *testing.T) {
	_, _, h := recorder()
	p := NewPlayer(h)
	prog := ramp()
	prog.Loop = true
	require.NoError(t, p.Load(prog))
	p.Start()

	p.Tick(3.5)
	assert.Equal(t, Running, p.State)
	assert.InDelta(t, 0.5, p.Position(), 1e-9)
}

func TestPlayerPauseSeek(t *testing.T) {
	levels, _, h := recorder()
	p := NewPlayer(h)
	require.NoError(t, p.Load(ramp()))
	p.Start()

	p.Pause()
	*levels = nil
	p.Tick(1)
	assert.Empty(t, *levels)
	assert.Equal(t, Paused, p.State)

	p.Resume()
	p.Seek(2.5)
	assert.Equal(t, []call{{0, 128}}, *levels)

	p.Seek(100)
	assert.Less(t, p.Position(), 3.0)

	p.Stop()
	assert.Equal(t, Idle, p.State)
	assert.Equal(t, 0.0, p.Position())
}

func TestPlayerRetriesFailedHook(t *testing.T) {
	fail := true
	var got []uint16
	p := NewPlayer(Hooks{SetBrightness: func(ch int, v uint16) error {
		if fail {
			return errors.New("nack")
		}
		got = append(got, v)
		return nil
	}})
	require.NoError(t, p.Load(Program{Clips: []Clip{{
		Name:      "flat",
		DurationS: 10,
		Levels:    map[int]Envelope{3: {Keys: []Keyframe{{T: 0, V: 90}}}},
	}}}))
	p.Start()
	assert.Empty(t, got)

	fail = false
	p.Tick(0.1)
	p.Tick(0.1)
	assert.Equal(t, []uint16{90}, got)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	_, _, h := recorder()
	sp := NewSafePlayer(h)
	sp.With(func(p *Player) {
		require.NoError(t, p.Load(ramp()))
		p.Start()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := &Runner{Player: sp, Rate: 100, Log: zerolog.Nop()}
	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)

	sp.With(func(p *Player) {
		assert.Greater(t, p.Position(), 0.0)
	})
}
