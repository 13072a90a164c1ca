package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "freqtest.log")
	require.NoError(t, InitWithOptions(Options{Debug: true, File: path, MaxSizeMB: 1, MaxBackups: 1}))

	Infof("connected to %s", "/dev/ttyACM0")
	LogHTTPRequest("POST", "/read", 202, 3*time.Millisecond, 0, "127.0.0.1:5000", "curl", nil)
	LogHTTPRequest("GET", "/statistics", 500, time.Millisecond, 12, "127.0.0.1:5000", "curl", errors.New("boom"))
	Sync()

	entries := readEntries(t, path)
	require.Len(t, entries, 3)

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "connected to /dev/ttyACM0", entries[0]["msg"])

	assert.Equal(t, "debug", entries[1]["level"])
	assert.Equal(t, "/read", entries[1]["path"])
	assert.EqualValues(t, 202, entries[1]["status"])

	assert.Equal(t, "error", entries[2]["level"])
	assert.Equal(t, "boom", entries[2]["error"])
}

func TestInitConsoleOnly(t *testing.T) {
	require.NoError(t, Init(false))
	assert.NotNil(t, GetZapLogger())
	assert.NotNil(t, GetSugaredLogger())
}
