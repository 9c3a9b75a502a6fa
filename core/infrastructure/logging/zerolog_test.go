package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFormat(FormatJSON)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetFormat(FormatPretty)
		SetTagFilter("")
		SetLogLevel(LogLevelInfo)
	})
	return &buf
}

func TestShouldLogTag(t *testing.T) {
	t.Cleanup(func() { SetTagFilter("") })

	tests := []struct {
		name     string
		filter   string
		tag      string
		expected bool
	}{
		{"no filter", "", "dispatcher", true},
		{"included", "dispatcher", "dispatcher", true},
		{"included sub-tag", "connector", "connector:db1", true},
		{"not in allow list", "dispatcher", "parser", false},
		{"excluded", "-parser", "parser", false},
		{"excluded sub-tag", "-connector", "connector:db1", false},
		{"exclusion only keeps others", "-parser", "dispatcher", true},
		{"prefix is not a sub-tag", "conn", "connector", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetTagFilter(tt.filter)
			assert.Equal(t, tt.expected, shouldLogTag(tt.tag))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]int{
		"error": LogLevelError,
		"warn":  LogLevelWarn,
		"info":  LogLevelInfo,
		"":      LogLevelInfo,
		"debug": LogLevelDebug,
		"trace": LogLevelDebug,
	}
	for name, expected := range tests {
		level, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, expected, level, name)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogger_RespectsLevelAndTag(t *testing.T) {
	buf := captureJSON(t)
	SetLogLevel(LogLevelWarn)

	log := New("dispatcher").With("run_id", "r-1")
	log.Info("hidden")
	log.Warnf("connection %s slow", "db1")
	log.Success("always shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "dispatcher", entry["tag"])
	assert.Equal(t, "r-1", entry["run_id"])
	assert.Equal(t, "connection db1 slow", entry["message"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "success", entry["status"])
}

func TestLogger_FilteredTagIsNoOp(t *testing.T) {
	buf := captureJSON(t)
	SetTagFilter("-parser")

	New("parser").Error("dropped")
	assert.Empty(t, buf.String())
}

func TestSetLogFile(t *testing.T) {
	_ = captureJSON(t)
	dir := t.TempDir()

	path, err := SetLogFile(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseLogFile() })

	New("cli").Info("to file")
	require.NoError(t, CloseLogFile())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "to file")
}
