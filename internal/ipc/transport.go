package ipc

import (
	"context"
	"encoding/json"
)

// Caller identifies who sent a request. Transports fill it in.
type Caller struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Origin     string `json:"origin,omitempty"`
}

// RawHandler answers one request on a channel. It must always return a
// well-formed envelope.
type RawHandler func(ctx context.Context, payload json.RawMessage, caller Caller) Response

// Transport is a named-channel request/response mechanism handlers are
// registered against.
type Transport interface {
	Handle(channel string, h RawHandler)
}
