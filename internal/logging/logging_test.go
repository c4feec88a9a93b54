package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level  string
		format string
		want   zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"INFO", "json", zapcore.InfoLevel},
		{" warn ", "", zapcore.WarnLevel},
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			l, err := New(tc.level, tc.format)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tc.want))
			assert.False(t, l.Core().Enabled(tc.want-1))
		})
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("loud", "console")
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
