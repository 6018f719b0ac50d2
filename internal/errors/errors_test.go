package errors_test

import (
	"fmt"
	"io"
	"testing"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInsufficientData)
	assert.Equal(t, "Not enough samples to fit a trend", err.Error())

	err = errFactory.WithData(errors.ErrInsufficientData, 1)
	assert.Equal(t, "Not enough samples to fit a trend: 1", err.Error())

	err = errFactory.Wrap(errors.ErrPersist, io.ErrShortWrite)
	assert.Equal(t, "Failed to persist snapshot: short write", err.Error())
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestIsCode(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.New(errors.ErrDegenerateWindow)
	outer := errFactory.Wrap(errors.ErrOperationFailed, fmt.Errorf("fit: %w", inner))

	assert.True(t, errors.IsCode(outer, errors.ErrOperationFailed))
	assert.True(t, errors.IsCode(outer, errors.ErrDegenerateWindow))
	assert.False(t, errors.IsCode(outer, errors.ErrInsufficientData))
	assert.False(t, errors.IsCode(io.EOF, errors.ErrInsufficientData))
	assert.False(t, errors.IsCode(nil, errors.ErrInsufficientData))

	code, ok := errors.CodeOf(outer)
	assert.True(t, ok)
	assert.Equal(t, errors.ErrOperationFailed, code)
}
