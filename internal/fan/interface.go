package fan

// Actuator drives the fan. Duty is a fraction of the PWM period in [0, 1].
type Actuator interface {
	SetDutyCycle(duty float64) error
	Close() error
}

// State is the last commanded duty tier. The zero value means no tier has
// been commanded yet.
type State int

const (
	StateUnset State = iota
	StateSlow
	StateFast
)

func (s State) String() string {
	switch s {
	case StateSlow:
		return "slow"
	case StateFast:
		return "fast"
	default:
		return "unset"
	}
}
