package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/controllers/restserver"
	"github.com/chrissnell/freqtest/internal/managers"
	"github.com/chrissnell/freqtest/internal/sinks/logsink"
	"github.com/chrissnell/freqtest/internal/sinks/metrics"
	"github.com/chrissnell/freqtest/internal/sinks/mqtt"
	"github.com/chrissnell/freqtest/internal/transport"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	config   *config.ConfigData
	openPort transport.OpenFunc
	logger   *zap.SugaredLogger
}

// New creates a new application instance. A nil openPort opens real serial
// devices.
func New(cfg *config.ConfigData, openPort transport.OpenFunc, logger *zap.SugaredLogger) *App {
	return &App{
		config:   cfg,
		openPort: openPort,
		logger:   logger,
	}
}

// Session is an acquisition controller bound to a serial transport
type Session struct {
	Controller *acquisition.Controller
	Serial     *transport.Serial
}

// NewSession builds the transport and controller described by cfg. The
// caller must drain Controller.Events and call Close when done.
func NewSession(ctx context.Context, cfg *config.ConfigData, openPort transport.OpenFunc, logger *zap.SugaredLogger) (*Session, error) {
	params, err := cfg.Parameters()
	if err != nil {
		return nil, err
	}

	serial := transport.NewSerial(cfg.Instrument.Baud, openPort, logger)

	ctrl, err := acquisition.NewController(ctx, serial, params, AcquisitionOptions(cfg), logger)
	if err != nil {
		return nil, err
	}

	return &Session{Controller: ctrl, Serial: serial}, nil
}

// Close waits for the running worker and closes the serial port. The
// controller's context must already be cancelled or the worker idle.
func (s *Session) Close() {
	s.Controller.Wait()
	s.Serial.Close()
}

// AcquisitionOptions maps configuration onto controller options. A zero
// settle delay in the file means no wait at all.
func AcquisitionOptions(cfg *config.ConfigData) acquisition.Options {
	settle := cfg.Instrument.SettleDelay
	if settle == 0 {
		settle = -1
	}

	return acquisition.Options{
		ReadTimeout:     cfg.Instrument.ReadTimeout,
		SettleDelay:     settle,
		SampleInterval:  cfg.Test.SampleInterval,
		DefaultDuration: cfg.Test.Duration,
		EventBuffer:     cfg.Test.EventBuffer,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session, err := NewSession(ctx, a.config, a.openPort, a.logger)
	if err != nil {
		return err
	}
	defer session.Close()

	// Initialize the event manager and its sinks
	eventManager := managers.NewEventManager(a.logger)
	eventManager.AddSink(ctx, &wg, "log", logsink.New(a.logger))

	var gatherer prometheus.Gatherer
	if a.config.Server.EnableMetrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		eventManager.AddSink(ctx, &wg, "metrics", metrics.New(reg))
		gatherer = reg
	}

	if a.config.MQTT.Enabled() {
		publisher, err := mqtt.New(a.config.MQTT, a.logger)
		if err != nil {
			return err
		}
		eventManager.AddSink(ctx, &wg, "mqtt", publisher)
	}

	hub := restserver.NewHub(a.logger)
	eventManager.AddSink(ctx, &wg, "websocket", hub)
	eventManager.StartEventDistributor(ctx, &wg, session.Controller.Events())

	// Initialize the controller manager
	rest, err := restserver.NewController(ctx, &wg, a.config.Server, session.Controller, hub, gatherer, a.logger)
	if err != nil {
		return err
	}
	cm := managers.NewControllerManager(a.logger)
	cm.AddController("rest", rest)
	if err := cm.StartControllers(); err != nil {
		return err
	}

	if port := a.config.Instrument.Port; port != "" {
		if err := session.Controller.Connect(port); err != nil {
			a.logger.Warnf("could not connect to %s at startup: %v", port, err)
		}
	}

	a.logger.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Stop any timed test, then cancel context to signal all goroutines to stop
	session.Controller.CancelTimedTest()
	cancel()

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	session.Controller.Wait()
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}
