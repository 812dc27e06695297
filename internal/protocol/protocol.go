// Package protocol defines the JSON messages exchanged between an embedded
// figure viewer and its host. Both sides import it; neither side's internals
// leak into it.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EnvelopeType identifies the kind of message on the channel.
type EnvelopeType string

const (
	EnvViewerReady    EnvelopeType = "viewerReady"
	EnvFigurlRequest  EnvelopeType = "figurlRequest"
	EnvFigurlResponse EnvelopeType = "figurlResponse"
	EnvHostMessage    EnvelopeType = "hostMessage"
)

// RequestType identifies a request carried by a figurlRequest envelope.
type RequestType string

const (
	ReqGetFigureData  RequestType = "getFigureData"
	ReqGetFileDataURL RequestType = "getFileDataUrl"
)

// Envelope is the outer shape of every message. Only the fields relevant to
// Type are set.
type Envelope struct {
	Type      EnvelopeType    `json:"type"`
	FigureID  string          `json:"figureId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// Request is the body of a figurlRequest.
type Request struct {
	Type RequestType `json:"type"`
	URI  string      `json:"uri,omitempty"`
}

// FigureDataResponse answers getFigureData. FigureData is passed through
// untouched; a JSON null means the host has nothing to show.
type FigureDataResponse struct {
	Type       RequestType     `json:"type"`
	FigureData json.RawMessage `json:"figureData"`
}

// FileDataURLResponse answers getFileDataUrl. Exactly one of FileDataURL and
// ErrorMessage is set.
type FileDataURLResponse struct {
	Type         RequestType `json:"type"`
	FileDataURL  string      `json:"fileDataUrl,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
}

// HostMessage is an unsolicited push from the host.
type HostMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// HostClosing is pushed to every viewer when the host shuts down.
const HostClosing = "hostClosing"

// Decode parses a raw channel message into an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// NewViewerReady builds the one-time handshake.
func NewViewerReady(figureID string) ([]byte, error) {
	return json.Marshal(Envelope{Type: EnvViewerReady, FigureID: figureID})
}

// NewRequest wraps req in a figurlRequest envelope.
func NewRequest(figureID, requestID string, req Request) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      EnvFigurlRequest,
		FigureID:  figureID,
		RequestID: requestID,
		Request:   body,
	})
}

// NewResponse wraps resp in a figurlResponse envelope.
func NewResponse(requestID string, resp interface{}) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:      EnvFigurlResponse,
		RequestID: requestID,
		Response:  body,
	})
}

// NewHostMessage wraps msg in a hostMessage envelope.
func NewHostMessage(msg HostMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: EnvHostMessage, Message: body})
}

// IsNull reports whether raw is absent or the JSON literal null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// IsEmpty reports whether raw carries no value a host would send on
// purpose: absent, null, false, zero or the empty string. Objects and
// arrays, even empty ones, are values.
func IsEmpty(raw json.RawMessage) bool {
	if IsNull(raw) {
		return true
	}
	trimmed := bytes.TrimSpace(raw)
	switch trimmed[0] {
	case 'f':
		return bytes.Equal(trimmed, []byte("false"))
	case '"':
		var s string
		return json.Unmarshal(trimmed, &s) == nil && s == ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		return json.Unmarshal(trimmed, &f) == nil && f == 0
	}
	return false
}
