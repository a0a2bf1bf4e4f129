// Package sensor reads temperatures exposed by the kernel as sysfs files.
//
// Values are reported in degrees Fahrenheit. Every read goes to the file;
// nothing is cached between calls.
package sensor

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/iceman/internal/errors"
)

// Temperature is a reading in degrees Fahrenheit.
type Temperature float64

// Source is anything that produces a fresh temperature reading.
type Source interface {
	Read() (Temperature, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() (Temperature, error)

func (f SourceFunc) Read() (Temperature, error) {
	return f()
}

// FromMilliCelsius converts the kernel's millidegree Celsius integer.
func FromMilliCelsius(milli int64) Temperature {
	c := float64(milli) / 1000.0

	return Temperature(c*9.0/5.0 + 32.0)
}

// Celsius converts back for display.
func (t Temperature) Celsius() float64 {
	return (float64(t) - 32.0) * 5.0 / 9.0
}

func parseMilliCelsius(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New().WithData(errors.ErrMalformedData, "empty temperature value")
	}

	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, errors.New().Wrap(errors.ErrMalformedData, err)
	}

	return n, nil
}
