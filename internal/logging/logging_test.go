package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		t.Run(format, func(t *testing.T) {
			log, err := New(zapcore.WarnLevel, format)
			require.NoError(t, err)
			assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
			assert.True(t, log.Core().Enabled(zapcore.ErrorLevel))
		})
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := New(zapcore.InfoLevel, "xml")
	assert.Error(t, err)
}
