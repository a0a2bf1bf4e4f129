package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"codeberg.org/mutker/iceman/internal/config"
	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/fan"
	"codeberg.org/mutker/iceman/internal/logger"
	"codeberg.org/mutker/iceman/internal/metrics"
	"codeberg.org/mutker/iceman/internal/pid"
	"codeberg.org/mutker/iceman/internal/sensor"
	"codeberg.org/mutker/iceman/internal/tach"
	"golang.org/x/sync/errgroup"
)

// Initial duty before the first control tick decides.
const startupDutyCycle = 1.0

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := cfg.Level()
	logger.Init(level, logger.IsService())
	if _, err := logger.ParseLevel(cfg.LogLevel); err != nil {
		logger.Warn().Err(err).Msg("Unrecognised log level, using info")
	}
	logger.Info().Msgf("Setting log level to: %s", level)

	if err := pid.Write(cfg.PIDDir); err != nil {
		fatal(err, "Failed to write PID file")
	}

	// The loops run until the process is killed.
	if err := run(context.Background(), cfg); err != nil {
		fatal(err, "Fan controller stopped")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Default()

	log.Debug().
		Str("influxdb_url", cfg.Metrics.URL).
		Str("api_username", cfg.Metrics.Username).
		Str("api_password", "<redacted>").
		Msg("Grafana API credentials")

	pwm, err := fan.OpenRPIO(cfg.PWM.Pin, cfg.PWM.Frequency, startupDutyCycle)
	if err != nil {
		return err
	}
	defer closeQuietly(log, pwm, "PWM")

	log.Info().
		Int("hz", pwm.Frequency()).
		Str("hot_temp", fmt.Sprintf("%.2f", cfg.HotTemp)).
		Str("max_duty_cycle", fmt.Sprintf("%.2f", cfg.MaxDutyCycle)).
		Str("min_duty_cycle", fmt.Sprintf("%.2f", cfg.MinDutyCycle)).
		Msg("Starting fan controller...")

	probe := sensor.NewProbe(cfg.Probe.DevicesDir, cfg.Probe.Prefix)
	board := sensor.NewBoard(cfg.Board.Path)

	counter := tach.NewCounter(cfg.Tach.PulsesPerRevolution, tach.MonotonicClock())
	watcher, err := tach.Watch(cfg.Tach.Chip, cfg.Tach.Pin, counter.EdgeHandler())
	if err != nil {
		return err
	}
	defer closeQuietly(log, watcher, "tachometer")

	remote := metrics.NewInflux(metrics.InfluxConfig{
		URL:      cfg.Metrics.URL,
		Username: cfg.Metrics.Username,
		Password: cfg.Metrics.Password,
		Timeout:  cfg.Metrics.Timeout,
	})
	var local metrics.Fanout

	var opts []fan.Option

	var prom *metrics.Prometheus
	if cfg.Prometheus.Listen != "" {
		prom = metrics.NewPrometheus()
		local = append(local, prom)
		opts = append(opts, fan.WithStateHook(prom.ObserveFan))
	}

	history, err := metrics.NewHistory(metrics.HistoryConfig{
		DBPath:       cfg.History.DBPath,
		BatchSize:    cfg.History.BatchSize,
		BatchTimeout: metrics.DefaultHistoryConfig().BatchTimeout,
		Enabled:      cfg.History.Enabled,
	}, log)
	if err != nil {
		// History is optional; the controller runs without it.
		log.Warn().Err(err).Msg("Sample history disabled")
	} else if history != nil {
		local = append(local, history)
		defer closeQuietly(log, history, "history")
	}

	controller := fan.New(fan.Config{
		HotTemp:      cfg.HotTemp,
		MaxDutyCycle: cfg.MaxDutyCycle,
		MinDutyCycle: cfg.MinDutyCycle,
		Interval:     cfg.ControlInterval,
	}, probe, pwm, log.With("controller"), opts...)

	var loopOpts []metrics.LoopOption
	if len(local) > 0 {
		loopOpts = append(loopOpts, metrics.WithLocalPublisher(local))
	}

	loop := metrics.NewLoop(metrics.LoopConfig{
		Interval: cfg.MetricsInterval,
		Location: cfg.Metrics.Location,
		Fan:      cfg.Metrics.Fan,
		Probe:    cfg.Metrics.Probe,
	}, counter, probe, board, remote, log.With("metrics"), loopOpts...)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controller.Run(ctx)
	})

	log.Info().Msg("Starting metric reporter...")
	g.Go(func() error {
		return loop.Run(ctx)
	})

	if prom != nil {
		g.Go(func() error {
			// A failed scrape endpoint must not take the loops down.
			if err := prom.Serve(ctx, cfg.Prometheus.Listen, log.With("prometheus")); err != nil {
				log.Error().Err(err).Msg("Prometheus endpoint stopped")
			}
			return nil
		})
	}

	return g.Wait()
}

func closeQuietly(log logger.Logger, c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("Failed to close")
	}
}

func fatal(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.FatalWithCode(appErr).Msg(msg)
		return
	}
	logger.Fatal().Err(err).Msg(msg)
}
