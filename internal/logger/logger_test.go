package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/thermotrend/internal/errors"
	"codeberg.org/mutker/thermotrend/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]logger.LogLevel{
		"debug":   logger.DebugLevel,
		"info":    logger.InfoLevel,
		"":        logger.InfoLevel,
		"warning": logger.WarnLevel,
		"error":   logger.ErrorLevel,
	} {
		got, err := logger.ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := logger.ParseLevel("loud")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidLogLevel))
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.InfoLevel) })

	err := errors.New().New(errors.ErrDegenerateWindow)
	logger.Default().ErrorWithCode(err).Msg("fit skipped")

	assert.Contains(t, buf.String(), `"error_code":"degenerate_window"`)
	assert.Contains(t, buf.String(), `"message":"fit skipped"`)
}
