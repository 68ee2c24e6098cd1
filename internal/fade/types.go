package fade

import (
	"sort"

	"github.com/pkg/errors"
)

// Keyframe is a value at time T (seconds). Ease shapes the segment that
// starts at this keyframe.
type Keyframe struct {
	T    float64 `yaml:"t" json:"t"`
	V    float64 `yaml:"v" json:"v"`
	Ease string  `yaml:"ease,omitempty" json:"ease,omitempty"` // "linear","smooth","cubic"
}

// Envelope is a list of keyframes sorted by T.
type Envelope struct {
	Keys []Keyframe `yaml:"keys" json:"keys"`
}

// Clip automates channel levels (0..256) and effect flags (>= 0.5 is on)
// for DurationS seconds.
type Clip struct {
	Name      string           `yaml:"name" json:"name"`
	DurationS float64          `yaml:"duration_s" json:"durationS"`
	Levels    map[int]Envelope `yaml:"levels,omitempty" json:"levels,omitempty"`
	Effects   map[int]Envelope `yaml:"effects,omitempty" json:"effects,omitempty"`
}

// Program is a sequence of clips.
type Program struct {
	Version string `yaml:"version,omitempty" json:"version,omitempty"` // e.g. "fade.v1"
	Loop    bool   `yaml:"loop,omitempty" json:"loop,omitempty"`
	Clips   []Clip `yaml:"clips" json:"clips"`
}

type PlayerState string

const (
	Idle    PlayerState = "idle"
	Running PlayerState = "running"
	Paused  PlayerState = "paused"
)

// Hooks drive the chip. A hook that returns an error is called again on the
// next tick.
type Hooks struct {
	SetBrightness func(channel int, value uint16) error
	SetEffect     func(channel int, on bool) error
}

const channels = 8

func (p Program) Validate() error {
	if len(p.Clips) == 0 {
		return errors.New("program has no clips")
	}
	for i, c := range p.Clips {
		if c.DurationS <= 0 {
			return errors.Errorf("clip %d (%s): duration_s must be positive", i, c.Name)
		}
		for _, m := range []map[int]Envelope{c.Levels, c.Effects} {
			for ch := range m {
				if ch < 0 || ch >= channels {
					return errors.Errorf("clip %d (%s): channel %d out of range", i, c.Name, ch)
				}
			}
		}
	}
	return nil
}

// sorted returns a copy of p with every envelope's keys ordered by T.
func (p Program) sorted() Program {
	out := p
	out.Clips = make([]Clip, len(p.Clips))
	for i, c := range p.Clips {
		c.Levels = sortEnvelopes(c.Levels)
		c.Effects = sortEnvelopes(c.Effects)
		out.Clips[i] = c
	}
	return out
}

func sortEnvelopes(m map[int]Envelope) map[int]Envelope {
	if m == nil {
		return nil
	}
	out := make(map[int]Envelope, len(m))
	for ch, e := range m {
		keys := append([]Keyframe(nil), e.Keys...)
		sort.SliceStable(keys, func(i, j int) bool { return keys[i].T < keys[j].T })
		out[ch] = Envelope{Keys: keys}
	}
	return out
}
