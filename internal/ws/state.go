package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/coreman2200/pca9634/internal/config"
	diag "github.com/coreman2200/pca9634/internal/diagnostics"
	"github.com/coreman2200/pca9634/internal/fade"
	"github.com/coreman2200/pca9634/model"
	"github.com/coreman2200/pca9634/pca9634"
)

// Command is one control request. Only the fields its Op reads are used.
type Command struct {
	Op string `json:"op"`

	Channel int    `json:"channel,omitempty"`
	Value   uint16 `json:"value,omitempty"`
	On      bool   `json:"on,omitempty"`

	Ratio   float64 `json:"ratio,omitempty"`
	PeriodS float64 `json:"period_s,omitempty"`
	Duty    float64 `json:"duty,omitempty"`

	Inverted     bool   `json:"inverted,omitempty"`
	Trigger      string `json:"trigger,omitempty"`
	Structure    string `json:"structure,omitempty"`
	WhenDisabled string `json:"when_disabled,omitempty"`

	Slot int `json:"slot,omitempty"`
	Addr int `json:"addr,omitempty"`

	Program *fade.Program `json:"program,omitempty"`
	Pattern string        `json:"pattern,omitempty"`
}

// Reply answers every Command.
type Reply struct {
	OK     bool             `json:"ok"`
	Error  string           `json:"error,omitempty"`
	Fade   fade.PlayerState `json:"fade"`
	Status *model.Status    `json:"status,omitempty"`
}

type State struct {
	mu     sync.Mutex // serializes commands
	Dev    *pca9634.Dev
	Player *fade.SafePlayer
	Driver string

	log         zerolog.Logger
	startTime   time.Time
	dmu         sync.Mutex
	diagClients map[*websocket.Conn]bool
}

// NewState binds a player to dev. Fade hooks report bus failures on /diag.
func NewState(dev *pca9634.Dev, driver string, log zerolog.Logger) *State {
	s := &State{
		Dev:         dev,
		Driver:      driver,
		log:         log,
		startTime:   time.Now(),
		diagClients: map[*websocket.Conn]bool{},
	}
	s.Player = fade.NewSafePlayer(fade.Hooks{
		SetBrightness: func(ch int, v uint16) error {
			return s.report("fade.brightness", dev.SetBrightness(ch, v))
		},
		SetEffect: func(ch int, on bool) error {
			return s.report("fade.effect", dev.SetEffectEnabled(ch, on))
		},
	})
	return s
}

var errBadCommand = errors.New("bad command")

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (s *State) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.dmu.Lock()
	s.diagClients[conn] = true
	s.dmu.Unlock()
	go func() {
		defer func() {
			s.dmu.Lock()
			delete(s.diagClients, conn)
			s.dmu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *State) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			d := diag.New(diag.Warn, diag.CmdMalformed, "Malformed control message")
			d.Detail = err.Error()
			s.PushDiag(d)
			_ = conn.WriteJSON(Reply{Error: err.Error(), Fade: s.fadeState()})
			continue
		}
		_ = conn.WriteJSON(s.Execute(cmd))
	}
}

func (s *State) HandleHealth(w http.ResponseWriter, r *http.Request) {
	regs, err := s.Dev.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"driver":   s.Driver,
		"device":   s.Dev.String(),
		"uptime_s": time.Since(s.startTime).Seconds(),
		"fade":     s.fadeState(),
	}
	if err != nil {
		s.report("health", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		resp["error"] = err.Error()
	} else {
		resp["status"] = regs.Status()
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// Execute runs cmd against the chip and returns the resulting status.
func (s *State) Execute(cmd Command) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.apply(cmd)
	if err != nil && !errors.Is(err, errBadCommand) && !errors.Is(err, pca9634.ErrNoOEPin) {
		s.report(cmd.Op, err)
	}
	rep := Reply{OK: err == nil, Fade: s.fadeState()}
	if err != nil {
		rep.Error = err.Error()
	}
	if regs, serr := s.Dev.Snapshot(); serr == nil {
		st := regs.Status()
		rep.Status = &st
	}
	return rep
}

func (s *State) apply(cmd Command) error {
	s.log.Debug().Str("op", cmd.Op).Msg("control")
	d := s.Dev
	switch cmd.Op {
	case "status":
		return nil
	case "reset":
		if err := d.Reset(); err != nil {
			s.PushDiag(diag.New(diag.Err, diag.ChipResetNoAck, "Software reset not acknowledged"))
			return err
		}
		s.PushDiag(diag.New(diag.Info, diag.ChipReset, "Chip reset to power-up state"))
		return nil
	case "sleep":
		return d.Sleep()
	case "wake":
		return d.Wake()
	case "brightness":
		return d.SetBrightness(cmd.Channel, cmd.Value)
	case "effect":
		return d.SetEffectEnabled(cmd.Channel, cmd.On)
	case "dim":
		return d.ConfigureDimming(cmd.Ratio)
	case "blink":
		return d.ConfigureBlinking(time.Duration(cmd.PeriodS*float64(time.Second)), cmd.Duty)
	case "outputs":
		trig, err := config.ParseTrigger(cmd.Trigger)
		if err != nil {
			return errors.Wrap(errBadCommand, err.Error())
		}
		st, err := config.ParseStructure(cmd.Structure)
		if err != nil {
			return errors.Wrap(errBadCommand, err.Error())
		}
		wd, err := config.ParseWhenDisabled(cmd.WhenDisabled)
		if err != nil {
			return errors.Wrap(errBadCommand, err.Error())
		}
		return d.ConfigureOutputs(cmd.Inverted, trig, st, wd)
	case "subaddr":
		return d.SetSubAddress(cmd.Slot, uint8(cmd.Addr))
	case "allcall":
		if cmd.On {
			return d.SetAllCallAddress(uint8(cmd.Addr))
		}
		return d.DisableAllCallAddress()
	case "oe":
		return d.SetOutputEnabled(cmd.On)
	case "fade":
		return s.startFade(cmd.Program)
	case "test":
		prog, err := fade.Pattern(cmd.Pattern)
		if err != nil {
			note := diag.New(diag.Warn, diag.TestUnknown, "Unknown test pattern")
			note.Evidence = map[string]any{"name": cmd.Pattern}
			s.PushDiag(note)
			return errors.Wrap(errBadCommand, err.Error())
		}
		note := diag.New(diag.Info, diag.TestRunning, "Running test pattern")
		note.Detail = cmd.Pattern
		s.PushDiag(note)
		return s.startFade(&prog)
	case "pause":
		s.Player.With(func(p *fade.Player) { p.Pause() })
		return nil
	case "resume":
		s.Player.With(func(p *fade.Player) { p.Resume() })
		return nil
	case "stop":
		s.Player.With(func(p *fade.Player) { p.Stop() })
		return nil
	}
	s.PushDiag(diag.UnknownCommand(cmd.Op))
	return errors.Wrapf(errBadCommand, "unknown op %q", cmd.Op)
}

// startFade loads prog when given and starts playback.
func (s *State) startFade(prog *fade.Program) error {
	var err error
	s.Player.With(func(p *fade.Player) {
		if prog != nil {
			if err = p.Load(*prog); err != nil {
				return
			}
		}
		if len(p.Program().Clips) == 0 {
			err = errors.New("no fade program loaded")
			return
		}
		p.Start()
	})
	if err != nil {
		d := diag.New(diag.Warn, diag.FadeFailed, "Fade program rejected")
		d.Detail = err.Error()
		s.PushDiag(d)
		return errors.Wrap(errBadCommand, err.Error())
	}
	s.PushDiag(diag.New(diag.Info, diag.FadeLoaded, "Fade program running"))
	return nil
}

// report logs err and pushes a bus diagnostic. It returns err unchanged.
func (s *State) report(op string, err error) error {
	if err == nil {
		return nil
	}
	s.log.Warn().Err(err).Str("op", op).Msg("chip command failed")
	s.PushDiag(diag.BusError(op, err))
	return err
}

func (s *State) fadeState() fade.PlayerState {
	var st fade.PlayerState
	s.Player.With(func(p *fade.Player) { st = p.State })
	return st
}

func (s *State) PushDiag(d diag.Diagnostic) {
	b, _ := json.Marshal(d)
	s.dmu.Lock()
	defer s.dmu.Unlock()
	for c := range s.diagClients {
		c.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			s.log.Debug().Err(err).Msg("write diag")
		}
	}
}
