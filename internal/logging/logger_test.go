package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARNING "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New("info", FormatJSON, &buf), "scan")

	logger.Debug().Msg("hidden")
	logger.Info().Str("code", "ABC123").Msg("entrance started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "scan", entry["component"])
	assert.Equal(t, "ABC123", entry["code"])
	assert.Equal(t, "entrance started", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", FormatConsole, &buf)

	logger.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
}
