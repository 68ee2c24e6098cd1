package fade

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultRate = 30

// Runner ticks a player at a fixed rate.
type Runner struct {
	Player *SafePlayer
	Rate   int // ticks per second, DefaultRate when zero
	Log    zerolog.Logger
}

// Run blocks until ctx is done and returns its error.
func (r *Runner) Run(ctx context.Context) error {
	rate := r.Rate
	if rate <= 0 {
		rate = DefaultRate
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	r.Log.Debug().Int("rate", rate).Msg("fade runner started")
	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			r.Player.With(func(p *Player) { p.Tick(dt) })
		case <-ctx.Done():
			r.Log.Debug().Msg("fade runner stopped")
			return ctx.Err()
		}
	}
}
