package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
)

var ErrUnknownChannel = errors.New("no handler registered for channel")

// Mux is the in-process dispatch table. Transports that carry requests
// from another process hand them to Invoke.
type Mux struct {
	log        *slog.Logger
	policy     CallerPolicy
	handlers   map[string]RawHandler
	handlersMu sync.RWMutex
}

type MuxOption func(*Mux)

// WithCallerPolicy makes the mux reject callers the policy refuses before
// any handler runs.
func WithCallerPolicy(p CallerPolicy) MuxOption {
	return func(m *Mux) {
		m.policy = p
	}
}

func NewMux(log *slog.Logger, opts ...MuxOption) *Mux {
	m := &Mux{
		log:      log.With(slog.String("component", "ipc_mux")),
		handlers: make(map[string]RawHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle registers h for channel. Registering the same channel twice
// replaces the earlier handler.
func (m *Mux) Handle(channel string, h RawHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()

	if _, exists := m.handlers[channel]; exists {
		m.log.Warn("Replacing handler", slog.String("channel", channel))
	} else {
		m.log.Debug("Registering handler", slog.String("channel", channel))
	}
	m.handlers[channel] = h
}

// Invoke runs the handler for channel. Calls are not serialized: two
// requests on the same channel may run at the same time.
func (m *Mux) Invoke(ctx context.Context, channel string, payload json.RawMessage, caller Caller) (Response, error) {
	m.handlersMu.RLock()
	h, ok := m.handlers[channel]
	m.handlersMu.RUnlock()

	if !ok {
		m.log.Warn("No handler registered for channel",
			slog.String("channel", channel),
			slog.String("caller", caller.ID))
		return Response{}, ErrUnknownChannel
	}

	if m.policy != nil {
		if err := m.policy.Allow(channel, caller); err != nil {
			m.log.Warn("IPC call rejected",
				slog.String("channel", channel),
				slog.String("caller", caller.ID),
				slog.String("origin", caller.Origin),
				slog.String("reason", err.Error()))
			if de, ok := AsError(err); ok {
				return FailWith(de), nil
			}
			return Fail(CodeAccessDenied, err.Error()), nil
		}
	}

	return h(ctx, payload, caller), nil
}

// Channels lists registered channels in sorted order.
func (m *Mux) Channels() []string {
	m.handlersMu.RLock()
	defer m.handlersMu.RUnlock()

	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasChannel reports whether a handler is registered for channel.
func (m *Mux) HasChannel(channel string) bool {
	return slices.Contains(m.Channels(), channel)
}
