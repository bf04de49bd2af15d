// Package wire defines the JSON message envelope exchanged between the
// browser, the relay, and the connector. Every websocket frame carries
// exactly one envelope.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message types routed by the relay. Browser connections may send input,
// resize and close; connector connections may send data and status. The
// error type is only ever emitted by the relay itself.
const (
	TypeInput  = "terminal:input"
	TypeResize = "terminal:resize"
	TypeData   = "terminal:data"
	TypeStatus = "terminal:status"
	TypeClose  = "terminal:close"
	TypeError  = "error"
)

// Status values carried by terminal:status envelopes.
const (
	StatusReady        = "ready"
	StatusClosed       = "closed"
	StatusError        = "error"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Envelope is the wire representation of a single message. Fields are
// populated depending on Type; unused fields are omitted from the JSON.
type Envelope struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Cols    uint16 `json:"cols,omitempty"`
	Rows    uint16 `json:"rows,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Input builds a terminal:input envelope carrying keystrokes.
func Input(data string) Envelope {
	return Envelope{Type: TypeInput, Data: data}
}

// Resize builds a terminal:resize envelope with the new geometry.
func Resize(cols, rows uint16) Envelope {
	return Envelope{Type: TypeResize, Cols: cols, Rows: rows}
}

// Data builds a terminal:data envelope carrying shell output.
func Data(data string) Envelope {
	return Envelope{Type: TypeData, Data: data}
}

// Status builds a terminal:status envelope.
func Status(status, message string) Envelope {
	return Envelope{Type: TypeStatus, Status: status, Message: message}
}

// Close builds a terminal:close envelope requesting a graceful remote
// shutdown.
func Close() Envelope {
	return Envelope{Type: TypeClose}
}

// Error builds an error envelope. The relay always force-closes the
// connection after sending one.
func Error(message string) Envelope {
	return Envelope{Type: TypeError, Message: message}
}

// Encode serializes an envelope to JSON.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses a JSON frame into an envelope. Frames without a type are
// rejected; unknown types are passed through for the caller to drop.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope missing type")
	}
	return env, nil
}
