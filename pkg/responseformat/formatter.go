package responseformat

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is a wire encoding for API payloads
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// FormatFromRequest returns MsgPack when format=msgpack is given and JSON otherwise
func FormatFromRequest(req *http.Request) Format {
	if req.URL.Query().Get("format") == string(MsgPack) {
		return MsgPack
	}
	return JSON
}

// ContentType returns the HTTP content type of the format
func (f Format) ContentType() string {
	if f == MsgPack {
		return "application/x-msgpack"
	}
	return "application/json"
}

// Marshal encodes data in the given format. MessagePack uses the json struct
// tags so both encodings share field names.
func Marshal(f Format, data any) ([]byte, error) {
	if f == MsgPack {
		var buf bytes.Buffer
		encoder := msgpack.NewEncoder(&buf)
		encoder.SetCustomStructTag("json")
		if err := encoder.Encode(data); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return json.Marshal(data)
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// WriteResponse writes data with the given status in the format the request asked for
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	format := FormatFromRequest(req)

	body, err := Marshal(format, data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}

	// Always set CORS header
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes err as an ErrorBody with the given status
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, err error) error {
	return f.WriteResponse(w, req, status, ErrorBody{Error: err.Error()})
}
