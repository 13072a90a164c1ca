//go:build windows

package transport

import (
	"errors"
	"sort"

	"golang.org/x/sys/windows/registry"
)

const serialCommKey = `HARDWARE\DEVICEMAP\SERIALCOMM`

// ListPorts returns the COM ports registered under SERIALCOMM.
func ListPorts() ([]string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, serialCommKey, registry.QUERY_VALUE)
	if err != nil {
		// The key only exists once a serial driver has loaded.
		if errors.Is(err, registry.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer k.Close()

	names, err := k.ReadValueNames(0)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, name := range names {
		port, _, err := k.GetStringValue(name)
		if err != nil {
			continue
		}
		ports = append(ports, port)
	}

	sort.Strings(ports)
	return ports, nil
}
