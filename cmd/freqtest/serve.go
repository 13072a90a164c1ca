package main

import (
	"github.com/chrissnell/freqtest/internal/app"
	"github.com/chrissnell/freqtest/internal/log"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the counter over HTTP with a websocket event stream",
		Long: `Serve exposes the acquisition controller over HTTP: port listing,
connect/disconnect, single reads, timed tests, statistics, and a websocket
event stream at /events. Prometheus metrics are served at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := applyServeFlags(cmd, cfg); err != nil {
				return err
			}

			log.Infof("freqtest %s starting", getVersion())
			return app.New(cfg, nil, log.GetSugaredLogger()).Run(cmd.Context())
		},
	}

	cmd.Flags().String("listen", config.DefaultListenAddr, "Address to listen on")
	cmd.Flags().Int("http-port", config.DefaultHTTPPort, "HTTP port")
	cmd.Flags().Bool("no-metrics", false, "Disable the /metrics endpoint")
	cmd.Flags().String("mqtt-broker", "", "Publish events to this MQTT broker (e.g. tcp://localhost:1883)")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.ConfigData) error {
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Server.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("http-port") {
		cfg.Server.Port, _ = flags.GetInt("http-port")
	}
	if flags.Changed("no-metrics") {
		noMetrics, _ := flags.GetBool("no-metrics")
		cfg.Server.EnableMetrics = !noMetrics
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker, _ = flags.GetString("mqtt-broker")
	}
	return cfg.Validate()
}
