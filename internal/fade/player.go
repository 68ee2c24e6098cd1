package fade

import (
	"math"
	"sync"
)

// Player owns a Program timeline and pushes channel values through Hooks.
// A hook is only called when the value it would send differs from the last
// one it accepted.
type Player struct {
	State PlayerState

	prog Program
	nowS float64 // position within the program
	idx  int     // current clip

	level  [channels]int // last accepted level, -1 when unknown
	effect [channels]int // last accepted effect flag, -1 when unknown

	hooks Hooks
}

func NewPlayer(h Hooks) *Player {
	p := &Player{State: Idle, hooks: h}
	p.forget()
	return p
}

// Load replaces the program and rewinds to Idle.
func (p *Player) Load(prog Program) error {
	if err := prog.Validate(); err != nil {
		return err
	}
	p.prog = prog.sorted()
	p.nowS = 0
	p.idx = 0
	p.State = Idle
	p.forget()
	return nil
}

func (p *Player) Program() Program { return p.prog }

// Start runs from the current position and pushes its values immediately.
func (p *Player) Start() {
	if p.State == Running || len(p.prog.Clips) == 0 {
		return
	}
	p.State = Running
	clip, localT := p.current()
	p.emit(clip, localT)
}

func (p *Player) Pause() {
	if p.State == Running {
		p.State = Paused
	}
}

func (p *Player) Resume() {
	if p.State == Paused {
		p.State = Running
	}
}

// Stop rewinds to the start. Channels keep their last values.
func (p *Player) Stop() {
	p.State = Idle
	p.nowS = 0
	p.idx = 0
}

// Position returns the absolute program time in seconds.
func (p *Player) Position() float64 { return p.nowS }

// Seek jumps to absolute program time t, clamped into [0, total).
func (p *Player) Seek(t float64) {
	if len(p.prog.Clips) == 0 {
		return
	}
	if t < 0 {
		t = 0
	}
	total := p.totalDuration()
	if t >= total {
		t = math.Nextafter(total, -1)
	}
	acc := 0.0
	for i, c := range p.prog.Clips {
		if t < acc+c.DurationS {
			p.idx = i
			break
		}
		acc += c.DurationS
	}
	p.nowS = t
	if p.State == Running {
		clip, localT := p.current()
		p.emit(clip, localT)
	}
}

// Tick advances by dt seconds, emits the active clip's values and moves on
// to the next clip when the active one has ended.
func (p *Player) Tick(dt float64) {
	if p.State != Running || len(p.prog.Clips) == 0 || dt <= 0 {
		return
	}
	p.nowS += dt

	for {
		clip, localT := p.current()
		if localT < clip.DurationS {
			p.emit(clip, localT)
			return
		}
		// Land on the clip's final values before leaving it.
		p.emit(clip, clip.DurationS)
		if !p.advance() {
			return
		}
	}
}

func (p *Player) current() (Clip, float64) {
	acc := 0.0
	for i := 0; i < p.idx; i++ {
		acc += p.prog.Clips[i].DurationS
	}
	return p.prog.Clips[p.idx], p.nowS - acc
}

func (p *Player) totalDuration() float64 {
	total := 0.0
	for _, c := range p.prog.Clips {
		total += c.DurationS
	}
	return total
}

func (p *Player) advance() bool {
	if p.idx+1 < len(p.prog.Clips) {
		p.idx++
		return true
	}
	if !p.prog.Loop {
		p.State = Idle
		p.nowS = 0
		p.idx = 0
		return false
	}
	p.nowS -= p.totalDuration()
	if p.nowS < 0 {
		p.nowS = 0
	}
	p.idx = 0
	return true
}

func (p *Player) emit(c Clip, t float64) {
	for ch, env := range c.Levels {
		v := int(math.Round(env.Eval(t)))
		if v < 0 {
			v = 0
		}
		if v > 256 {
			v = 256
		}
		if v == p.level[ch] || p.hooks.SetBrightness == nil {
			continue
		}
		if p.hooks.SetBrightness(ch, uint16(v)) == nil {
			p.level[ch] = v
		}
	}
	for ch, env := range c.Effects {
		v := 0
		if env.On(t) {
			v = 1
		}
		if v == p.effect[ch] || p.hooks.SetEffect == nil {
			continue
		}
		if p.hooks.SetEffect(ch, v == 1) == nil {
			p.effect[ch] = v
		}
	}
}

func (p *Player) forget() {
	for i := range p.level {
		p.level[i] = -1
		p.effect[i] = -1
	}
}

// SafePlayer serializes access to a Player shared by a Runner and its
// controllers.
type SafePlayer struct {
	mu sync.Mutex
	P  *Player
}

func NewSafePlayer(h Hooks) *SafePlayer {
	return &SafePlayer{P: NewPlayer(h)}
}

func (s *SafePlayer) With(f func(p *Player)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.P)
}
