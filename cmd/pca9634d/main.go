package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/pca9634/internal/bus"
	"github.com/coreman2200/pca9634/internal/config"
	diag "github.com/coreman2200/pca9634/internal/diagnostics"
	"github.com/coreman2200/pca9634/internal/fade"
	"github.com/coreman2200/pca9634/internal/ws"
	"github.com/coreman2200/pca9634/pca9634"
)

func main() {
	// ---- Flags (config.yaml overrides where set) ----
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		driver     = flag.String("driver", "", "bus driver: periph | d2r2 | sim")
		busName    = flag.String("bus", "", "periph I2C bus name, e.g. 1 or /dev/i2c-1")
		addr       = flag.Int("addr", 0, "7-bit chip address (default from config, else 0x70)")
		listen     = flag.String("listen", "", "HTTP listen address")
		rate       = flag.Int("rate", fade.DefaultRate, "fade ticks per second")
		logLevel   = flag.String("log-level", "", "debug | info | warn | error")
		simOnly    = flag.Bool("sim-only", false, "force the simulated chip")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with defaults")
		cfg = config.Default()
	}
	if *driver != "" {
		cfg.Bus.Driver = *driver
	}
	if *busName != "" {
		cfg.Bus.Name = *busName
	}
	if *addr != 0 {
		cfg.Addr = *addr
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *simOnly {
		cfg.Bus.Driver = bus.Sim
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	// ---- Bus and chip ----
	b, used, err := bus.Open(bus.Config{
		Driver:   cfg.Bus.Driver,
		Name:     cfg.Bus.Name,
		Number:   cfg.Bus.Number,
		SimAddr:  uint16(cfg.Addr),
		Fallback: true,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Bus.Driver).Msg("bus open failed")
	}
	defer b.Close()

	opts := &pca9634.Opts{
		Addr:      uint16(cfg.Addr),
		ResetAddr: uint16(cfg.ResetAddr),
		Logger:    &log.Logger,
	}
	if cfg.OEPin != "" {
		if pin, err := bus.OEPin(cfg.OEPin); err != nil {
			log.Warn().Err(err).Str("pin", cfg.OEPin).Msg("output enable pin unavailable")
		} else {
			opts.OE = pin
		}
	}
	dev, err := pca9634.New(b, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("pca9634 init failed")
	}

	state := ws.NewState(dev, used, log.Logger)
	if used != cfg.Bus.Driver && cfg.Bus.Driver != "" {
		state.PushDiag(diag.New(diag.Warn, diag.BusFallback, "Hardware bus unavailable, simulating the chip"))
	}

	if err := config.Apply(dev, cfg); err != nil {
		log.Error().Err(err).Str("dev", dev.String()).Msg("applying config failed")
	}
	if cfg.OEPin != "" {
		if err := dev.SetOutputEnabled(true); err != nil {
			log.Warn().Err(err).Msg("enable outputs")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Fade != nil {
		state.Player.With(func(p *fade.Player) {
			if err := p.Load(*cfg.Fade); err != nil {
				log.Error().Err(err).Msg("fade program rejected")
				return
			}
			p.Start()
		})
	}
	runner := &fade.Runner{Player: state.Player, Rate: *rate, Log: log.Logger}
	go runner.Run(ctx)

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	mux.HandleFunc("/diag", state.HandleDiagWS)
	mux.HandleFunc("/control", state.HandleControlWS)
	mux.HandleFunc("/health", state.HandleHealth)

	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Listen).Str("driver", used).Str("dev", dev.String()).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	s := <-ch
	log.Info().Str("signal", s.String()).Msg("shutting down")

	cancel()
	_ = srv.Close()
	if err := dev.Halt(); err != nil {
		log.Warn().Err(err).Msg("sleep chip")
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
