// Package restserver exposes the acquisition controller over HTTP and streams
// its events to websocket clients.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/chrissnell/freqtest/internal/log"
	"github.com/chrissnell/freqtest/pkg/config"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Instrument is the part of the acquisition controller the HTTP surface drives
type Instrument interface {
	ListAvailablePorts() ([]string, error)
	Connect(port string) error
	Disconnect() error
	Parameters() frequency.TestParameters
	SetParameters(frequency.TestParameters) error
	SingleRead() error
	StartTimedTestInput(raw string) (string, error)
	CancelTimedTest()
	ClearStatistics()
	Statistics() acquisition.Summary
	State() acquisition.State
}

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	Server     http.Server
	instrument Instrument
	hub        *Hub
	gatherer   prometheus.Gatherer
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller. When gatherer is nil
// the /metrics endpoint is not registered.
func NewController(ctx context.Context, wg *sync.WaitGroup, sc config.ServerData, instrument Instrument, hub *Hub, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) (*Controller, error) {
	if instrument == nil {
		return nil, errors.New("REST server requires an instrument")
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		sc.ListenAddr = config.DefaultListenAddr
	}

	// Set default HTTP port if not specified
	if sc.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultHTTPPort)
		sc.Port = config.DefaultHTTPPort
	}

	ctrl := &Controller{
		ctx:        ctx,
		wg:         wg,
		instrument: instrument,
		hub:        hub,
		gatherer:   gatherer,
		logger:     logger,
	}
	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}))(ctrl.Router())

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	c.logger.Infof("Starting REST server on %s...", c.Server.Addr)

	ln, err := net.Listen("tcp", c.Server.Addr)
	if err != nil {
		return fmt.Errorf("REST server could not listen on %s: %w", c.Server.Addr, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Server.Serve(ln); err != http.ErrServerClosed {
			c.logger.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		c.logger.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogMiddleware)

	router.HandleFunc("/ports", c.handlers.GetPorts).Methods(http.MethodGet)
	router.HandleFunc("/connect", c.handlers.Connect).Methods(http.MethodPost)
	router.HandleFunc("/disconnect", c.handlers.Disconnect).Methods(http.MethodPost)
	router.HandleFunc("/parameters", c.handlers.GetParameters).Methods(http.MethodGet)
	router.HandleFunc("/parameters", c.handlers.PutParameters).Methods(http.MethodPut)
	router.HandleFunc("/read", c.handlers.SingleRead).Methods(http.MethodPost)
	router.HandleFunc("/timed", c.handlers.StartTimedTest).Methods(http.MethodPost)
	router.HandleFunc("/timed/cancel", c.handlers.CancelTimedTest).Methods(http.MethodPost)
	router.HandleFunc("/clear", c.handlers.ClearStatistics).Methods(http.MethodPost)
	router.HandleFunc("/statistics", c.handlers.GetStatistics).Methods(http.MethodGet)
	router.HandleFunc("/state", c.handlers.GetState).Methods(http.MethodGet)

	if c.hub != nil {
		router.HandleFunc("/events", c.hub.ServeWS).Methods(http.MethodGet)
	}

	// We only enable the /metrics endpoint if metrics have been configured.
	if c.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router
}

// recoveryLogger adapts zap to the gorilla/handlers recovery logger
type recoveryLogger struct {
	logger *zap.SugaredLogger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error(v...)
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, req)

		var err error
		if m.Code >= http.StatusInternalServerError {
			err = errors.New(http.StatusText(m.Code))
		}
		log.LogHTTPRequest(req.Method, req.URL.Path, m.Code, m.Duration, int(m.Written), req.RemoteAddr, req.UserAgent(), err)
	})
}
