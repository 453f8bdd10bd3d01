package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Output: &buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "loud", Output: &buf})

	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.Contains(t, out, "info message")
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, "engine")

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"engine"`)
}
