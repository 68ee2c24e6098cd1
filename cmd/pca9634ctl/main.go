package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/coreman2200/pca9634/internal/bus"
	"github.com/coreman2200/pca9634/internal/config"
	"github.com/coreman2200/pca9634/internal/fade"
	"github.com/coreman2200/pca9634/pca9634"
)

const usage = `usage: pca9634ctl [flags] <command> [args]

commands:
  reset                     software reset every PCA9634 on the bus
  sleep | wake              oscillator off / on
  status                    print the decoded registers as JSON
  brightness <ch> <0..256>  set one channel
  effect <ch> on|off        follow the group dimming or blinking
  dim <ratio>               group dimming, ratio 0..1
  blink <period> <duty>     group blinking, e.g. blink 1s 0.5
  apply                     push the -config setup to the chip
  fade <program.yaml>       play a fade program until it ends
  test <pattern>            play index_sweep, all_on or breathe
  init-config <path>        write a default config file

flags:
`

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		driver     = flag.String("driver", "", "bus driver: periph | d2r2 | sim")
		busName    = flag.String("bus", "", "periph I2C bus name")
		addr       = flag.Int("addr", 0, "7-bit chip address")
		verbose    = flag.Bool("v", false, "log register traffic")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	if args[0] == "init-config" {
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		if err := config.Save(args[1], config.Default()); err != nil {
			log.Fatal().Err(err).Msg("init-config")
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("load config")
		}
		cfg = c
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

	b, _, err := bus.Open(bus.Config{
		Driver:  cfg.Bus.Driver,
		Name:    cfg.Bus.Name,
		Number:  cfg.Bus.Number,
		SimAddr: uint16(cfg.Addr),
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("open bus")
	}
	defer b.Close()

	dev, err := pca9634.New(b, &pca9634.Opts{
		Addr:      uint16(cfg.Addr),
		ResetAddr: uint16(cfg.ResetAddr),
		Logger:    &log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("pca9634")
	}

	if err := run(dev, cfg, args); err != nil {
		log.Error().Err(err).Str("dev", dev.String()).Str("cmd", args[0]).Msg("failed")
		b.Close()
		os.Exit(1)
	}
}

func run(dev *pca9634.Dev, cfg *config.Config, args []string) error {
	cmd, args := args[0], args[1:]
	need := func(n int) error {
		if len(args) != n {
			return errors.Errorf("%s takes %d argument(s)", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "reset":
		return dev.Reset()
	case "sleep":
		return dev.Sleep()
	case "wake":
		return dev.Wake()
	case "status":
		regs, err := dev.Snapshot()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(regs.Status())
	case "brightness":
		if err := need(2); err != nil {
			return err
		}
		ch, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "channel")
		}
		v, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return errors.Wrap(err, "brightness")
		}
		return dev.SetBrightness(ch, uint16(v))
	case "effect":
		if err := need(2); err != nil {
			return err
		}
		ch, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Wrap(err, "channel")
		}
		switch args[1] {
		case "on":
			return dev.SetEffectEnabled(ch, true)
		case "off":
			return dev.SetEffectEnabled(ch, false)
		}
		return errors.Errorf("effect: %q is not on or off", args[1])
	case "dim":
		if err := need(1); err != nil {
			return err
		}
		r, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.Wrap(err, "ratio")
		}
		return dev.ConfigureDimming(r)
	case "blink":
		if err := need(2); err != nil {
			return err
		}
		period, err := time.ParseDuration(args[0])
		if err != nil {
			return errors.Wrap(err, "period")
		}
		duty, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return errors.Wrap(err, "duty")
		}
		return dev.ConfigureBlinking(period, duty)
	case "apply":
		return config.Apply(dev, cfg)
	case "fade":
		if err := need(1); err != nil {
			return err
		}
		prog, err := loadProgram(args[0])
		if err != nil {
			return err
		}
		return play(dev, prog)
	case "test":
		if err := need(1); err != nil {
			return err
		}
		prog, err := fade.Pattern(args[0])
		if err != nil {
			return err
		}
		return play(dev, prog)
	}
	return errors.Errorf("unknown command %q", cmd)
}

func loadProgram(path string) (fade.Program, error) {
	var prog fade.Program
	data, err := os.ReadFile(path)
	if err != nil {
		return prog, err
	}
	if err := yaml.Unmarshal(data, &prog); err != nil {
		return prog, errors.Wrapf(err, "parse %s", path)
	}
	return prog, nil
}

// play runs prog until it ends or Ctrl+C.
func play(dev *pca9634.Dev, prog fade.Program) error {
	var err error
	if prog.Loop {
		log.Info().Msg("looping program, Ctrl+C to stop")
	}

	sp := fade.NewSafePlayer(fade.Hooks{
		SetBrightness: dev.SetBrightness,
		SetEffect:     dev.SetEffectEnabled,
	})
	sp.With(func(p *fade.Player) {
		if err = p.Load(prog); err == nil {
			p.Start()
		}
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go (&fade.Runner{Player: sp, Log: log.Logger}).Run(ctx)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			done := false
			sp.With(func(p *fade.Player) { done = p.State == fade.Idle })
			if done {
				return nil
			}
		}
	}
}
