package main

import (
	"fmt"
	"io"

	"github.com/chrissnell/freqtest/internal/transport"
	"github.com/spf13/cobra"
)

var listPorts transport.PortLister = transport.ListPorts

// NewPortsCmd creates the ports command.
func NewPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printPorts(cmd.OutOrStdout(), listPorts)
		},
	}
}

func printPorts(out io.Writer, list transport.PortLister) error {
	ports, err := list()
	if err != nil {
		return fmt.Errorf("could not list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(out, p)
	}
	return nil
}
