// Package remote runs a puppet over a WebSocket connection. Server exposes
// any puppet.Puppet as a JSON-RPC style endpoint; Client implements
// puppet.Puppet against such an endpoint, so a bot process can drive a
// backend hosted elsewhere.
package remote

import "encoding/json"

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Protocol version spoken by this package.
const ProtocolVersion = 1

// Frame is the base envelope for all WebSocket messages. The Type field
// discriminates between request, response, and event frames.
type Frame struct {
	Type string `json:"type"`

	// Request fields
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// Response fields
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Event fields
	Event string `json:"event,omitempty"`

	// Error (response only)
	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the standard error format in response frames.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried in response frames. The client maps them back to
// the puppet sentinel errors.
const (
	CodeNotFound      = "not_found"
	CodeUnsupported   = "unsupported"
	CodeInvalidParams = "invalid_params"
	CodeInternal      = "internal"
	CodeUnauthorized  = "unauthorized"
	CodeBadMethod     = "method_not_found"
)

// ConnectParams are sent by the client in the initial "connect" request.
type ConnectParams struct {
	Protocol int    `json:"protocol"`
	Token    string `json:"token,omitempty"`
}

// HelloOK is the server's response payload after a successful connect.
// It carries the backend identity so the client never needs a separate
// round trip for it.
type HelloOK struct {
	Protocol int    `json:"protocol"`
	Kind     string `json:"kind"`
	SelfID   string `json:"selfId"`
}

// MessageEvent is the payload of a "message" event frame.
type MessageEvent struct {
	MessageID string `json:"messageId"`
}

// Request parameter shapes, one per method family.

type idParams struct {
	ID string `json:"id"`
}

type searchParams struct {
	Query string `json:"query"`
}

type sendTextParams struct {
	ConversationID string   `json:"conversationId"`
	Text           string   `json:"text"`
	MentionIDs     []string `json:"mentionIds,omitempty"`
}

type sendContactParams struct {
	ConversationID string `json:"conversationId"`
	ContactID      string `json:"contactId"`
}

type sendPayloadParams struct {
	ConversationID string          `json:"conversationId"`
	Payload        json.RawMessage `json:"payload"`
}

type forwardParams struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// Response payload shapes.

type sentResult struct {
	MessageID string `json:"messageId"`
}

type searchResult struct {
	IDs []string `json:"ids"`
}

type recallResult struct {
	Recalled bool `json:"recalled"`
}

type cardResult struct {
	ContactID string `json:"contactId"`
}

type membersResult struct {
	MemberIDs []string `json:"memberIds"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      &ok,
		Payload: raw,
	}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, errShape ErrorShape) Frame {
	ok := false
	return Frame{
		Type:  FrameTypeResponse,
		ID:    id,
		OK:    &ok,
		Error: &errShape,
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: raw,
	}, nil
}
