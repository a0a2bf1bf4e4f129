//go:build !linux

package tach

import (
	"io"

	"codeberg.org/mutker/iceman/internal/errors"
)

// Watch is unsupported off Linux; there is no GPIO character device.
func Watch(_ string, _ int, _ func(Level)) (io.Closer, error) {
	return nil, errors.New().WithData(errors.ErrTachInit, "gpio unsupported on this platform")
}
