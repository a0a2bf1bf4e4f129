// Package tach turns tachometer edges into a fan speed estimate.
//
// Edges arrive on the GPIO event goroutine while the metrics loop drains the
// count on its own schedule. The three shared cells are independent atomics;
// no lock is taken and no multi-cell update has to be atomic as a unit. An
// edge racing a drain lands in exactly one window, either side of it.
package tach

import (
	"math"
	"sync/atomic"
	"time"
)

const (
	// DefaultPulsesPerRevolution matches fans that pull the tach line low
	// twice per turn (Noctua and most 4-pin PC fans).
	DefaultPulsesPerRevolution = 2.0

	// Drains closer together than this keep the previous estimate.
	minElapsed = time.Millisecond
)

// Level is a logic level observed on the tachometer pin.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "high"
	}

	return "low"
}

// Clock returns a timestamp in microseconds. Only differences are used.
type Clock func() int64

// MonotonicClock returns microseconds elapsed since it was created, read from
// the runtime's monotonic clock so wall clock steps never skew an estimate.
func MonotonicClock() Clock {
	start := time.Now()

	return func() int64 {
		return time.Since(start).Microseconds()
	}
}

// Counter accumulates falling edges and converts them into RPM.
type Counter struct {
	pulses     atomic.Uint64
	lastSample atomic.Int64
	rpm        atomic.Uint64 // math.Float64bits

	pulsesPerRev float64
	now          Clock
}

// NewCounter returns a Counter whose first window starts now.
func NewCounter(pulsesPerRev float64, clock Clock) *Counter {
	if pulsesPerRev <= 0 {
		pulsesPerRev = DefaultPulsesPerRevolution
	}
	if clock == nil {
		clock = MonotonicClock()
	}

	c := &Counter{pulsesPerRev: pulsesPerRev, now: clock}
	c.lastSample.Store(clock())

	return c
}

// EdgeHandler returns the callback to hand to the interrupt source. The
// returned function owns its debounce state and must be driven by a single
// event goroutine; the counter it feeds is safe for concurrent use.
func (c *Counter) EdgeHandler() func(Level) {
	var f debounce

	return func(level Level) {
		if !f.accept(level) {
			return
		}
		c.count(level)
	}
}

func (c *Counter) count(level Level) {
	if level != Low {
		return
	}
	c.pulses.Add(1)
}

// DrainAndEstimate closes the current window: it takes the pulse count,
// resets it to zero and stores the resulting RPM. It must not be called
// concurrently with itself.
func (c *Counter) DrainAndEstimate() float64 {
	now := c.now()
	prev := c.lastSample.Load()
	elapsed := time.Duration(now-prev) * time.Microsecond

	if elapsed < minElapsed {
		if elapsed < 0 {
			c.lastSample.Store(now)
		}
		return c.CurrentRate()
	}

	pulses := c.pulses.Swap(0)
	rpm := float64(pulses) / elapsed.Seconds() / c.pulsesPerRev * 60.0

	c.rpm.Store(math.Float64bits(rpm))
	c.lastSample.Store(now)

	return rpm
}

// CurrentRate returns the estimate stored by the last drain.
func (c *Counter) CurrentRate() float64 {
	return math.Float64frombits(c.rpm.Load())
}

// Pending returns the pulses counted since the last drain.
func (c *Counter) Pending() uint64 {
	return c.pulses.Load()
}

// debounce drops an event that repeats the previously accepted level. Some
// GPIO drivers deliver two events for one physical edge.
type debounce struct {
	prev Level
	seen bool
}

func (d *debounce) accept(level Level) bool {
	if d.seen && level == d.prev {
		return false
	}
	d.prev = level
	d.seen = true

	return true
}
