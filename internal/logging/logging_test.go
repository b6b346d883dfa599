package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesStructuredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vuramp.log")
	logger, err := build("debug", "json", []string{path})
	require.NoError(t, err)

	logger.Warnw("request failed", "vu", 3, "status", 503)
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(data, &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "request failed", entry["message"])
	assert.EqualValues(t, 3, entry["vu"])
	assert.EqualValues(t, 503, entry["status"])
	assert.Contains(t, entry, "time")
}

func TestLevelFiltersEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vuramp.log")
	logger, err := build("error", "json", []string{path})
	require.NoError(t, err)

	logger.Infow("started")
	logger.Warnw("slow")
	logger.Errorw("broken")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "broken")
}

func TestConsoleIsDefaultFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vuramp.log")
	logger, err := build("", "", []string{path})
	require.NoError(t, err)

	logger.Infow("ramping", "target", 10)
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ramping")
	assert.False(t, jsoniter.Valid(data), "console output should not be JSON")
}

func TestRejectsUnknownSettings(t *testing.T) {
	_, err := New("loud", "json")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.ErrorContains(t, err, "unsupported log format")
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Errorw("ignored", "k", "v") })
}
