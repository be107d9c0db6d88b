package lib

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		level    int32
		expected []string
		missing  []string
	}{
		{
			name:     "debug",
			detail:   "debug level prints everything",
			level:    DebugLevel,
			expected: []string{"DEBUG: d", "INFO: i", "WARN: w", "ERROR: e"},
		},
		{
			name:     "warn",
			detail:   "warn level hides debug and info",
			level:    WarnLevel,
			expected: []string{"WARN: w", "ERROR: e"},
			missing:  []string{"DEBUG: d", "INFO: i"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			out := new(bytes.Buffer)
			log := NewLogger(LoggerConfig{Level: test.level, Out: out})
			log.Debugf("%s", "d")
			log.Infof("%s", "i")
			log.Warnf("%s", "w")
			log.Errorf("%s", "e")
			for _, e := range test.expected {
				require.Contains(t, out.String(), e)
			}
			for _, m := range test.missing {
				require.NotContains(t, out.String(), m)
			}
		})
	}
}

func TestLoggerPrefixAndFatal(t *testing.T) {
	out := new(bytes.Buffer)
	base := NewLogger(LoggerConfig{Level: DebugLevel, Out: out})
	exitCode := -1
	base.(*Logger).exit = func(code int) { exitCode = code }
	log := WithPrefix(base, "controller")
	log.Fatalf("status write failed at %d", 7)
	require.Contains(t, out.String(), "[controller] status write failed at 7")
	require.Equal(t, 1, exitCode)
}
