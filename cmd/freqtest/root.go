package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/freqtest/internal/log"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for freqtest.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freqtest",
		Short: "Frequency counter acquisition and drift statistics",
		Long: `freqtest queries a TF930 frequency counter over a serial port, marks each
reading PASS or FAIL against a target frequency and tolerance, and reports
min, max, average, spread and drift in ppm.

Settings come from an optional YAML file (--config); flags override it.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to YAML configuration file")
	flags.Bool("debug", false, "Turn on debugging output")
	flags.StringP("port", "p", "", "Serial port the counter is attached to")
	flags.Int("baud", config.DefaultBaud, "Serial baud rate")
	flags.Float64("target", config.DefaultTargetHz, "Target frequency in Hz")
	flags.Float64("tolerance", config.DefaultTolerance, "Tolerance magnitude")
	flags.String("unit", "Hz", "Tolerance unit: Hz or ppm")

	// Add subcommands
	cmd.AddCommand(NewPortsCmd())
	cmd.AddCommand(NewReadCmd())
	cmd.AddCommand(NewTimedCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, if any, and applies the flags
// the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.ConfigData, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
		filename, _ := filepath.Abs(cfgFile)
		provider := config.NewYAMLProvider(filename)
		defer provider.Close()

		var err error
		cfg, err = provider.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags.Changed("debug") {
		cfg.Log.Debug, _ = flags.GetBool("debug")
	}
	if flags.Changed("port") {
		cfg.Instrument.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.Instrument.Baud, _ = flags.GetInt("baud")
	}
	if flags.Changed("target") {
		cfg.Test.TargetHz, _ = flags.GetFloat64("target")
	}
	if flags.Changed("tolerance") {
		cfg.Test.Tolerance, _ = flags.GetFloat64("tolerance")
	}
	if flags.Changed("unit") {
		cfg.Test.ToleranceUnit, _ = flags.GetString("unit")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads configuration and initializes logging.
func setup(cmd *cobra.Command) (*config.ConfigData, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	err = log.InitWithOptions(log.Options{
		Debug:      cfg.Log.Debug,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
