//go:build linux

package fan

import (
	"sync"

	"codeberg.org/mutker/iceman/internal/errors"
	rpio "github.com/stianeikeland/go-rpio/v4"
)

// RPIO drives a hardware PWM channel through /dev/gpiomem. On a Raspberry
// Pi, BCM 18 (physical pin 12) is PWM0.
type RPIO struct {
	mu   sync.Mutex
	pin  rpio.Pin
	freq int
}

// OpenRPIO maps the GPIO registers, switches pin to PWM mode at freqHz and
// sets the initial duty.
func OpenRPIO(pin, freqHz int, initialDuty float64) (*RPIO, error) {
	errFactory := errors.New()

	if pin <= 0 {
		pin = DefaultPWMPin
	}
	if freqHz <= 0 {
		freqHz = DefaultPWMFrequency
	}

	if err := rpio.Open(); err != nil {
		return nil, errFactory.Wrap(errors.ErrActuatorInit, err)
	}

	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(freqHz * cycleLen)

	r := &RPIO{pin: p, freq: freqHz}
	if err := r.SetDutyCycle(initialDuty); err != nil {
		_ = rpio.Close()
		return nil, err
	}

	return r, nil
}

func (r *RPIO) SetDutyCycle(duty float64) error {
	n, err := dutyLen(duty)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pin.DutyCycle(n, cycleLen)

	return nil
}

// Frequency returns the PWM output frequency in Hz.
func (r *RPIO) Frequency() int {
	return r.freq
}

// Close leaves the fan at full speed and unmaps the registers.
func (r *RPIO) Close() error {
	_ = r.SetDutyCycle(1)

	if err := rpio.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
