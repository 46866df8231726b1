package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"deskd/internal/ipc"
	"deskd/internal/util/logger/sl"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrBadFrame     = errors.New("server rejected malformed frame")
)

const eventBufferSize = 256

// Client is the caller side of the transport: it sends requests, matches
// replies by id and exposes pushed events.
type Client struct {
	ws  *websocket.Conn
	log *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan clientFrame
	err     error

	events chan Event
	done   chan struct{}
}

// Dial connects to a server. rawURL is a ws:// or wss:// URL; Path is
// appended when it has no path of its own.
func Dial(ctx context.Context, rawURL string, header http.Header, log *slog.Logger) (*Client, error) {
	const op = "listener.Dial"

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = Path
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	c := &Client{
		ws:      ws,
		log:     log.With(slog.String("component", "ipc_client")),
		pending: make(map[string]chan clientFrame),
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Call sends payload on channel and waits for the reply. payload may be nil,
// a json.RawMessage or any value json can encode. A channel nobody handles
// yields ipc.ErrUnknownChannel.
func (c *Client) Call(ctx context.Context, channel string, payload any) (Reply, error) {
	const op = "listener.Client.Call"

	raw, err := encodePayload(payload)
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w", op, err)
	}

	id := uuid.NewString()
	replyCh := make(chan clientFrame, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Reply{}, err
	}
	c.pending[id] = replyCh
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.ws.WriteJSON(frame{ID: id, Channel: channel, Payload: raw})
	c.writeMu.Unlock()
	if err != nil {
		return Reply{}, fmt.Errorf("%s: %w", op, err)
	}

	select {
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-c.done:
		return Reply{}, c.closedErr()
	case f := <-replyCh:
		switch f.Fault {
		case "":
		case FaultUnknownChannel:
			return Reply{}, fmt.Errorf("%w: %s", ipc.ErrUnknownChannel, channel)
		case FaultBadFrame:
			return Reply{}, ErrBadFrame
		default:
			return Reply{}, fmt.Errorf("%s: fault %q", op, f.Fault)
		}
		if f.Response == nil {
			return Reply{}, fmt.Errorf("%s: reply without response", op)
		}
		return *f.Response, nil
	}
}

// Events delivers server pushes. It is closed when the connection ends.
// Events arriving while the buffer is full are dropped.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		var f clientFrame
		if err := c.ws.ReadJSON(&f); err != nil {
			c.mu.Lock()
			c.err = ErrClientClosed
			c.mu.Unlock()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("Read failed", sl.Err(err))
			}
			return
		}

		if f.Event != "" {
			select {
			case c.events <- Event{Name: f.Event, Data: f.Data}:
			default:
				c.log.Warn("Event buffer full, dropping event", slog.String("event", f.Event))
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	return ErrClientClosed
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
