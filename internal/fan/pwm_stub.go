//go:build !linux

package fan

import "codeberg.org/mutker/iceman/internal/errors"

type RPIO struct{}

// OpenRPIO is unsupported off Linux.
func OpenRPIO(_, _ int, _ float64) (*RPIO, error) {
	return nil, errors.New().WithData(errors.ErrActuatorInit, "pwm unsupported on this platform")
}

func (*RPIO) SetDutyCycle(float64) error {
	return errors.New().WithData(errors.ErrActuatorWrite, "pwm unsupported")
}

func (*RPIO) Frequency() int { return 0 }
func (*RPIO) Close() error   { return nil }
