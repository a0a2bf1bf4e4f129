// Package fan runs the two-tier hysteresis loop that keeps the fan at a
// safe, non-oscillating speed.
package fan

import (
	"context"
	"time"

	"codeberg.org/mutker/iceman/internal/errors"
	"codeberg.org/mutker/iceman/internal/logger"
	"codeberg.org/mutker/iceman/internal/sensor"
)

const (
	DefaultHotTemp      = 78.0
	DefaultMaxDutyCycle = 1.0
	DefaultMinDutyCycle = 0.65
	DefaultInterval     = 2 * time.Second

	// The fan falls back to slow only once the probe is this far below
	// HotTemp; the gap keeps a temperature hovering at the threshold from
	// toggling the fan every tick.
	deadBand = 1.0
)

type Config struct {
	HotTemp      float64
	MaxDutyCycle float64
	MinDutyCycle float64
	Interval     time.Duration
}

// StateHook observes every commanded transition.
type StateHook func(state State, duty float64)

type Controller struct {
	cfg   Config
	probe sensor.Source
	pwm   Actuator
	log   logger.Logger
	hook  StateHook
}

type Option func(*Controller)

// WithStateHook registers fn to be called after each successful command.
func WithStateHook(fn StateHook) Option {
	return func(c *Controller) {
		c.hook = fn
	}
}

func New(cfg Config, probe sensor.Source, pwm Actuator, log logger.Logger, opts ...Option) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	c := &Controller{
		cfg:   cfg,
		probe: probe,
		pwm:   pwm,
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run ticks every interval until ctx is done. The state lives on this
// goroutine only. A failed tick keeps the previous state and the next tick
// retries.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	state := StateUnset
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next, err := c.Tick(state)
			if err != nil {
				c.logTickError(err)
				continue
			}
			state = next
		}
	}
}

// Tick reads the probe once and applies the hysteresis policy to prev.
//
// A failed probe read is absorbed: the fan is driven to MaxDutyCycle and
// StateFast is returned. Only actuator failures surface as errors, in which
// case prev is returned unchanged.
func (c *Controller) Tick(prev State) (State, error) {
	temp, err := c.probe.Read()
	if err != nil {
		c.log.Error().Err(err).Msg("Controller: Could not read temp sensor")
		c.log.Error().Msgf("Scaling fan to %.2f%% for safety.", c.cfg.MaxDutyCycle*100)

		return c.command(prev, StateFast, c.cfg.MaxDutyCycle)
	}

	t := float64(temp)
	c.log.Debug().
		Stringer("state", prev).
		Float64("temp", t).
		Msg("Current tick observation")

	switch {
	case (prev == StateSlow || prev == StateUnset) && t >= c.cfg.HotTemp:
		c.log.Info().Msg("Increasing fan speed to max power.")
		return c.command(prev, StateFast, c.cfg.MaxDutyCycle)

	case (prev == StateFast || prev == StateUnset) && t < c.cfg.HotTemp-deadBand:
		c.log.Info().Msg("Slowing fan to whisper setting.")
		return c.command(prev, StateSlow, c.cfg.MinDutyCycle)

	case prev == StateUnset:
		// First reading inside the dead band starts slow; the fan is still
		// at whatever duty the PWM was opened with, so command it.
		c.log.Info().Msg("Starting fan at whisper setting.")
		return c.command(prev, StateSlow, c.cfg.MinDutyCycle)

	default:
		return prev, nil
	}
}

func (c *Controller) command(prev, next State, duty float64) (State, error) {
	if err := c.pwm.SetDutyCycle(duty); err != nil {
		return prev, errors.New().Wrap(errors.ErrActuatorWrite, err)
	}

	if c.hook != nil {
		c.hook(next, duty)
	}

	return next, nil
}

func (c *Controller) logTickError(err error) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		c.log.ErrorWithCode(appErr).Msg("Error from controller tick")
		return
	}
	c.log.Error().Err(err).Msg("Error from controller tick")
}
