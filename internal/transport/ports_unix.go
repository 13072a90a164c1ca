//go:build !windows

package transport

import (
	"path/filepath"
	"sort"
)

// Device node patterns for USB CDC/FTDI adapters and on-board UARTs on Linux
// and macOS.
var portPatterns = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/ttyS*",
	"/dev/ttyAMA*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
	"/dev/tty.usbmodem*",
	"/dev/tty.usbserial*",
}

// ListPorts returns the serial device nodes currently present.
func ListPorts() ([]string, error) {
	return listPortsMatching(portPatterns)
}

func listPortsMatching(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var ports []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}

	sort.Strings(ports)
	return ports, nil
}
