package errors_test

import (
	"fmt"
	"io/fs"
	"testing"

	"codeberg.org/mutker/iceman/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrSensorNotFound)
	assert.Equal(t, "Temperature sensor not found", err.Error())

	err = errFactory.Wrap(errors.ErrSensorIO, fs.ErrNotExist)
	assert.Equal(t, "Failed to read temperature sensor: file does not exist", err.Error())
	assert.ErrorIs(t, err, fs.ErrNotExist)

	err = errFactory.WithData(errors.ErrPublishStatus, "status 503")
	assert.Equal(t, "Metrics endpoint returned an error status: status 503", err.Error())

	err = errFactory.WithMessage(errors.ErrInvalidConfig, "min_duty_cycle above max_duty_cycle")
	assert.Equal(t, "min_duty_cycle above max_duty_cycle", err.Error())
	assert.Equal(t, errors.ErrInvalidConfig, err.Code())
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.New(errors.ErrMalformedData)
	outer := errFactory.Wrap(errors.ErrSensorIO, fmt.Errorf("probe: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrSensorIO))
	assert.True(t, errors.HasCode(outer, errors.ErrMalformedData))
	assert.False(t, errors.HasCode(outer, errors.ErrSensorNotFound))
	assert.False(t, errors.HasCode(fs.ErrNotExist, errors.ErrSensorIO))
	assert.False(t, errors.HasCode(nil, errors.ErrSensorIO))
}
