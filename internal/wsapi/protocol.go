package wsapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kage-desktop/kage/internal/action"
)

// Wire error codes.
const (
	CodeInvalidJSON   = "INVALID_JSON"
	CodeUnknownAction = "UNKNOWN_ACTION"
	CodeHandlerError  = "HANDLER_ERROR"
)

// ErrInvalidEnvelope reports a frame that is not a request envelope.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Request is the envelope sent by clients.
type Request struct {
	Action    string          `json:"action"`
	Params    action.Params   `json:"params,omitempty"`
	RequestID json.RawMessage `json:"requestId,omitempty"`

	// rawAction is the action field as sent, kept for error messages when
	// it is not a string.
	rawAction json.RawMessage
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the envelope sent back to clients. Every key is always
// present; RequestID is null when the request carried none.
type Response struct {
	Action    string          `json:"action"`
	RequestID json.RawMessage `json:"requestId"`
	Success   bool            `json:"success"`
	Data      any             `json:"data"`
	Error     *ErrorBody      `json:"error"`
}

// wireRequest defers typing of action and params so that a frame with a
// misshapen field still yields its requestId.
type wireRequest struct {
	Action    json.RawMessage `json:"action"`
	Params    json.RawMessage `json:"params"`
	RequestID json.RawMessage `json:"requestId"`
}

// ParseRequest decodes a frame into a request envelope. Only frames that
// are not a JSON object fail. A non-string action becomes the empty name,
// which no handler is registered under; non-object params are dropped.
func ParseRequest(data []byte) (*Request, error) {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	req := &Request{RequestID: w.RequestID, rawAction: w.Action}
	if isNull(req.RequestID) {
		req.RequestID = nil
	}
	if len(w.Action) > 0 {
		// Unmarshal failure leaves the name empty.
		_ = json.Unmarshal(w.Action, &req.Action)
	}
	if len(w.Params) > 0 {
		var params action.Params
		if err := json.Unmarshal(w.Params, &params); err == nil {
			req.Params = params
		}
	}
	return req, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// NewOKResponse creates a successful response.
func NewOKResponse(actionName string, requestID json.RawMessage, data any) *Response {
	return &Response{
		Action:    actionName,
		RequestID: requestID,
		Success:   true,
		Data:      data,
	}
}

// NewErrorResponse creates a failed response.
func NewErrorResponse(actionName string, requestID json.RawMessage, code, message string) *Response {
	return &Response{
		Action:    actionName,
		RequestID: requestID,
		Error:     &ErrorBody{Code: code, Message: message},
	}
}

// Marshal converts a response to JSON bytes.
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// actionText renders the action for an unknown-action message.
func (r *Request) actionText() string {
	if r.Action == "" && !isNull(r.rawAction) {
		return string(r.rawAction)
	}
	return r.Action
}
