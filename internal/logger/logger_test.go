package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/hostpulse/internal/errors"
	"codeberg.org/mutker/hostpulse/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logger.LogLevel
		wantErr bool
	}{
		{in: "debug", want: logger.DebugLevel},
		{in: "INFO", want: logger.InfoLevel},
		{in: "", want: logger.InfoLevel},
		{in: "warning", want: logger.WarnLevel},
		{in: "warn", want: logger.WarnLevel},
		{in: "error", want: logger.ErrorLevel},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := logger.ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWithAddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf).With("controller")

	log.Info().Int("tick", 3).Msg("sampled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "controller", line["component"])
	assert.Equal(t, "sampled", line["message"])
	assert.EqualValues(t, 3, line["tick"])
}

func TestErrorWithCodeFields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	log.ErrorWithCode(errors.New().New(errors.ErrTick)).Msg("tick")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, string(errors.ErrTick), line["error_code"])
	assert.Equal(t, "Sampling tick failed", line["error_message"])
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Warn().Str("k", "v").Msg("ignored")
		log.With("x").Error().Send()
	})
}

func TestInitWritesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "system.log")

	closer, err := logger.Init(logger.Options{Level: "info", IsService: true, LogFile: path, Session: "abc"})
	require.NoError(t, err)

	logger.Info().Msg("daemon started")
	logger.Debug().Msg("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "daemon started")
	assert.Contains(t, string(data), "session=abc")
	assert.NotContains(t, string(data), "hidden")
}

func TestInitRejectsBadLevel(t *testing.T) {
	_, err := logger.Init(logger.Options{Level: "verbose"})
	require.Error(t, err)
}
