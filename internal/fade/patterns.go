package fade

import "github.com/pkg/errors"

// Test patterns for checking wiring.
const (
	IndexSweep = "index_sweep" // one channel fully on at a time
	AllOn      = "all_on"      // every channel on, then off
	Breathe    = "breathe"     // every channel fades up and down
)

var Patterns = []string{IndexSweep, AllOn, Breathe}

const stepS = 0.5

// Pattern returns the program for a named test pattern.
func Pattern(name string) (Program, error) {
	switch name {
	case IndexSweep:
		c := Clip{Name: name, DurationS: stepS * channels, Levels: map[int]Envelope{}}
		for ch := 0; ch < channels; ch++ {
			on := float64(ch) * stepS
			c.Levels[ch] = Envelope{Keys: []Keyframe{
				{T: 0, V: 0},
				{T: on, V: 0},
				{T: on, V: 256},
				{T: on + stepS, V: 256},
				{T: on + stepS, V: 0},
			}}
		}
		return Program{Version: "fade.v1", Clips: []Clip{c}}, nil
	case AllOn:
		return Program{Version: "fade.v1", Clips: []Clip{
			{Name: "on", DurationS: 1, Levels: every(Envelope{Keys: []Keyframe{{T: 0, V: 256}}})},
			{Name: "off", DurationS: stepS, Levels: every(Envelope{Keys: []Keyframe{{T: 0, V: 0}}})},
		}}, nil
	case Breathe:
		env := Envelope{Keys: []Keyframe{
			{T: 0, V: 0, Ease: "smooth"},
			{T: 1, V: 255, Ease: "smooth"},
			{T: 2, V: 0},
		}}
		return Program{Version: "fade.v1", Clips: []Clip{{Name: name, DurationS: 2, Levels: every(env)}}}, nil
	}
	return Program{}, errors.Errorf("unknown test pattern %q", name)
}

func every(e Envelope) map[int]Envelope {
	m := make(map[int]Envelope, channels)
	for ch := 0; ch < channels; ch++ {
		m[ch] = e
	}
	return m
}
