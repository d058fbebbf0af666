package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandToggleVisibility CommandType = "TOGGLE_VISIBILITY"
	CommandGetStatus        CommandType = "GET_STATUS"
	CommandReload           CommandType = "RELOAD"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// ToggleData represents the data returned by TOGGLE_VISIBILITY
type ToggleData struct {
	Visible        bool `json:"visible"`
	ManuallyHidden bool `json:"manually_hidden"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Version            string `json:"version"`
	WSPort             int    `json:"ws_port"`
	WSRunning          bool   `json:"ws_running"`
	Visible            bool   `json:"visible"`
	ManuallyHidden     bool   `json:"manually_hidden"`
	FullscreenActive   bool   `json:"fullscreen_active"`
	SurfaceAttached    bool   `json:"surface_attached"`
	PendingBridgeCalls int    `json:"pending_bridge_calls"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
