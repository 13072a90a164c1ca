package restserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/chrissnell/freqtest/internal/acquisition"
	"github.com/chrissnell/freqtest/internal/frequency"
	"github.com/chrissnell/freqtest/internal/transport"
	"github.com/chrissnell/freqtest/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// Request and response bodies
type PortsResponse struct {
	Ports []string `json:"ports"`
}

type ConnectRequest struct {
	Port string `json:"port"`
}

type ConnectResponse struct {
	Port string `json:"port"`
}

// TimedTestRequest carries the duration as the user typed it. A JSON number
// is accepted too.
type TimedTestRequest struct {
	Duration json.RawMessage `json:"duration"`
}

type TimedTestResponse struct {
	RunID string `json:"run_id"`
}

type StateResponse struct {
	State acquisition.State `json:"state"`
}

// GetPorts re-enumerates the serial ports
func (h *Handlers) GetPorts(w http.ResponseWriter, req *http.Request) {
	ports, err := h.controller.instrument.ListAvailablePorts()
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	h.formatter.WriteResponse(w, req, http.StatusOK, PortsResponse{Ports: ports})
}

// Connect opens the requested port
func (h *Handlers) Connect(w http.ResponseWriter, req *http.Request) {
	var body ConnectRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	if err := h.controller.instrument.Connect(body.Port); err != nil {
		if body.Port == "" {
			h.formatter.WriteError(w, req, http.StatusBadRequest, err)
			return
		}
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, ConnectResponse{Port: body.Port})
}

// Disconnect closes the serial connection
func (h *Handlers) Disconnect(w http.ResponseWriter, req *http.Request) {
	if err := h.controller.instrument.Disconnect(); err != nil {
		h.writeError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetParameters returns the current test parameters
func (h *Handlers) GetParameters(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, h.controller.instrument.Parameters())
}

// PutParameters replaces the test parameters
func (h *Handlers) PutParameters(w http.ResponseWriter, req *http.Request) {
	var params frequency.TestParameters
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	if err := h.controller.instrument.SetParameters(params); err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusOK, h.controller.instrument.Parameters())
}

// SingleRead starts one reading. The result arrives on the event stream.
func (h *Handlers) SingleRead(w http.ResponseWriter, req *http.Request) {
	if err := h.controller.instrument.SingleRead(); err != nil {
		h.writeError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StartTimedTest starts a timed test. An unusable duration falls back to the
// default; the event stream reports it.
func (h *Handlers) StartTimedTest(w http.ResponseWriter, req *http.Request) {
	var body TimedTestRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			h.formatter.WriteError(w, req, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
			return
		}
	}

	runID, err := h.controller.instrument.StartTimedTestInput(durationText(body.Duration))
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, http.StatusAccepted, TimedTestResponse{RunID: runID})
}

// durationText unquotes a JSON string and passes anything else through as
// raw text.
func durationText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// CancelTimedTest asks a running timed test to stop
func (h *Handlers) CancelTimedTest(w http.ResponseWriter, req *http.Request) {
	h.controller.instrument.CancelTimedTest()
	w.WriteHeader(http.StatusNoContent)
}

// ClearStatistics empties both measurement sets
func (h *Handlers) ClearStatistics(w http.ResponseWriter, req *http.Request) {
	h.controller.instrument.ClearStatistics()
	w.WriteHeader(http.StatusNoContent)
}

// GetStatistics returns the statistics of the active set
func (h *Handlers) GetStatistics(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, h.controller.instrument.Statistics())
}

// GetState returns the controller state
func (h *Handlers) GetState(w http.ResponseWriter, req *http.Request) {
	h.formatter.WriteResponse(w, req, http.StatusOK, StateResponse{State: h.controller.instrument.State()})
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	h.formatter.WriteError(w, req, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, acquisition.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, frequency.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, transport.ErrConnection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
