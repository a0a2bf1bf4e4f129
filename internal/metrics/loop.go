// Package metrics periodically samples the tachometer and both temperature
// sources and publishes the readings to one or more sinks.
package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/logger"
	"codeberg.org/mutker/iceman/internal/sensor"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultLocation = "kitchen"
	DefaultFan      = "fan1"
	DefaultProbe    = "probe1"

	boardProbeTag = "cpu"
)

type Loop struct {
	cfg     LoopConfig
	counter RateSource
	probe   sensor.Source
	board   sensor.Source
	pub     Publisher
	local   Publisher
	log     logger.Logger
	now     func() time.Time
}

type LoopOption func(*Loop)

// WithLocalPublisher adds sinks that receive every sample read in a round,
// even after the remote publisher has failed for that round.
func WithLocalPublisher(p Publisher) LoopOption {
	return func(l *Loop) {
		l.local = p
	}
}

// NewLoop returns a Loop publishing to pub, the remote endpoint.
func NewLoop(cfg LoopConfig, counter RateSource, probe, board sensor.Source, pub Publisher, log logger.Logger, opts ...LoopOption) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if cfg.Fan == "" {
		cfg.Fan = DefaultFan
	}
	if cfg.Probe == "" {
		cfg.Probe = DefaultProbe
	}

	l := &Loop{
		cfg:     cfg,
		counter: counter,
		probe:   probe,
		board:   board,
		pub:     pub,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run drains the counter and publishes one round of samples every interval
// until ctx is done. A failed round is logged and skipped.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.counter.DrainAndEstimate()
			if err := l.Tick(ctx, l.counter.CurrentRate()); err != nil {
				l.logTickError(err)
			}
		}
	}
}

// Tick publishes rpm, then the probe temperature, then the board
// temperature. A sensor failure ends the round. A remote publish failure
// stops remote publishing for the round, but the remaining readings still
// reach the local sinks. The first error is returned.
func (l *Loop) Tick(ctx context.Context, rpm float64) error {
	r := &round{loop: l, ctx: ctx}

	// Reported as whole revolutions per minute.
	rpm = math.Trunc(rpm)
	r.publish(MetricRPM, rpm, Tags{"location": l.cfg.Location, "fan": l.cfg.Fan})

	probeTemp, err := l.probe.Read()
	if err != nil {
		return r.fail(err)
	}
	r.publish(MetricProbeTemp, float64(probeTemp), Tags{"location": l.cfg.Location, "probe": l.cfg.Probe})

	boardTemp, err := l.board.Read()
	if err != nil {
		return r.fail(err)
	}
	r.publish(MetricBoardTemp, float64(boardTemp), Tags{"location": l.cfg.Location, "probe": boardProbeTag})

	if r.err != nil {
		return r.err
	}

	l.log.Info().
		Str("rpm_speed", fmt.Sprintf("%.2f", rpm)).
		Str("probe_temp", fmt.Sprintf("%.2f", float64(probeTemp))).
		Str("cpu_temp", fmt.Sprintf("%.2f", float64(boardTemp))).
		Msg("Current state from metrics")

	return nil
}

// round carries the remote publish error across one Tick.
type round struct {
	loop *Loop
	ctx  context.Context
	err  error
}

func (r *round) publish(name string, value float64, tags Tags) {
	l := r.loop
	l.log.Debug().
		Str("metric", name).
		Float64("value", value).
		Msg("Publishing metric")

	s := Sample{
		Timestamp: l.now(),
		Name:      name,
		Value:     value,
		Tags:      tags,
	}

	if l.local != nil {
		if err := l.local.Publish(r.ctx, s); err != nil {
			l.log.Warn().Err(err).Str("metric", name).Msg("Local sink rejected sample")
		}
	}

	if r.err != nil {
		return
	}
	r.err = l.pub.Publish(r.ctx, s)
}

func (r *round) fail(err error) error {
	if r.err != nil {
		return r.err
	}
	return err
}

func (l *Loop) logTickError(err error) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		l.log.ErrorWithCode(appErr).Msg("Error from within metrics loop")
		return
	}
	l.log.Error().Err(err).Msg("Error from within metrics loop")
}
