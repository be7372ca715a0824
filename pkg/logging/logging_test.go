package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLogLevel("WARN"))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("nonsense"))
}

func TestConfigureGlobalLogging_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)
	t.Cleanup(func() { _ = ConfigureGlobalLogging("info", "text") })

	require.NoError(t, ConfigureGlobalLogging("warn", "text"))

	log.Info().Msg("below threshold")
	log.Warn().Msg("at threshold")

	out := buf.String()
	assert.NotContains(t, out, "below threshold")
	assert.Contains(t, out, "at threshold")
}

func TestConfigureGlobalLogging_TextUsesConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(zerolog.ConsoleWriter{Out: &buf, NoColor: true})
	t.Cleanup(func() { _ = ConfigureGlobalLogging("info", "text") })

	require.NoError(t, ConfigureGlobalLogging("info", "text"))
	log.Info().Str("run_id", "r1").Msg("pipeline started")

	out := buf.String()
	assert.Contains(t, out, "pipeline started")
	assert.False(t, json.Valid([]byte(out)), "console output is not raw JSON")
}
