package listener

import (
	"encoding/json"

	"deskd/internal/ipc"
)

// Path is where the server accepts WebSocket upgrades.
const Path = "/ipc"

// Faults a reply carries instead of a response when the request never
// reached a handler.
const (
	FaultUnknownChannel = "unknown_channel"
	FaultBadFrame       = "bad_frame"
)

// frame is the single wire shape. Requests set ID, Channel and Payload;
// replies set ID and Response or Fault; pushes set Event and Data.
type frame struct {
	ID       string          `json:"id,omitempty"`
	Channel  string          `json:"channel,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Response *ipc.Response   `json:"response,omitempty"`
	Fault    string          `json:"fault,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Event is a server push as seen by a Client.
type Event struct {
	Name string
	Data json.RawMessage
}

// Reply is a response envelope as seen by a Client. Data stays raw until
// the caller decodes it.
type Reply struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ipc.ErrorInfo  `json:"error,omitempty"`
}

// Decode unmarshals Data into v. A reply without data leaves v untouched.
func (r Reply) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the failure as an *ipc.Error, or nil on success.
func (r Reply) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return ipc.NewError(ipc.CodeUnknown, ipc.FallbackMessage)
	}
	return ipc.NewError(r.Error.Code, r.Error.Message)
}

// clientFrame mirrors frame with a raw response body.
type clientFrame struct {
	ID       string          `json:"id,omitempty"`
	Response *Reply          `json:"response,omitempty"`
	Fault    string          `json:"fault,omitempty"`
	Event    string          `json:"event,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
