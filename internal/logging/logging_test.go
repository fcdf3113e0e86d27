package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", " INFO "} {
		l, err := New(lvl)
		require.NoError(t, err, lvl)
		assert.NotNil(t, l)
	}

	l, err := New("warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestSilentDiscards(t *testing.T) {
	l, err := New("silent")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestInvalidLevel(t *testing.T) {
	_, err := New("loud")
	assert.ErrorContains(t, err, `invalid log level "loud"`)

	_, err = New("fatal")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
