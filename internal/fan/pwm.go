package fan

import (
	"math"

	"codeberg.org/mutker/iceman/internal/errors"
)

const (
	DefaultPWMPin       = 18
	DefaultPWMFrequency = 25000

	// cycleLen is the PWM range; the PWM clock runs at cycleLen times the
	// output frequency, giving 1% duty resolution.
	cycleLen = 100
)

func dutyLen(duty float64) (uint32, error) {
	if math.IsNaN(duty) || duty < 0 || duty > 1 {
		return 0, errors.New().WithData(errors.ErrInvalidArgument, "duty cycle out of range [0, 1]")
	}

	return uint32(math.Round(duty * cycleLen)), nil
}
