//go:build !windows

package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPortsMatching(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ttyUSB1", "ttyUSB0", "ttyACM0", "console"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	ports, err := listPortsMatching([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "ttyACM*"),
		filepath.Join(dir, "tty*"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "ttyACM0"),
		filepath.Join(dir, "ttyUSB0"),
		filepath.Join(dir, "ttyUSB1"),
	}, ports)
}
