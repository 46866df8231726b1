package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"deskd/internal/ipc"
	"deskd/internal/util/logger/sl"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultAddress        = "127.0.0.1:35035"
	defaultMaxConnections = 16
	defaultRequestTimeout = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	sendBufferSize        = 64
	shutdownTimeout       = 5 * time.Second
)

// Invoker dispatches one request. *ipc.Mux satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, channel string, payload json.RawMessage, caller ipc.Caller) (ipc.Response, error)
}

type Config struct {
	Address        string
	MaxConnections int
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Server carries IPC requests over WebSocket connections and pushes
// broadcast events to every connected client.
type Server struct {
	cfg      Config
	invoker  Invoker
	log      *slog.Logger
	upgrader websocket.Upgrader

	connLimiter chan struct{}

	mu    sync.RWMutex
	conns map[*conn]struct{}
	wg    sync.WaitGroup
}

func New(invoker Invoker, cfg Config, log *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	s := &Server{
		cfg:         cfg,
		invoker:     invoker,
		log:         log.With(slog.String("component", "listener")),
		connLimiter: make(chan struct{}, cfg.MaxConnections),
		conns:       make(map[*conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.cfg.AllowedOrigins)
		},
	}
	return s
}

// Handler returns an http.Handler serving the server at Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

// Run listens on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	const op = "listener.Run"

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every
// open connection and waits for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	const op = "listener.Serve"
	log := s.log.With(slog.String("op", op))

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info("Service started", slog.String("address", ln.Addr().String()))

	select {
	case <-ctx.Done():
		log.Info("Shutting down listener")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down http server", sl.Err(err))
	}

	// hijacked connections are not tracked by http.Server
	s.closeAll()
	s.wg.Wait()
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "listener.ServeHTTP"
	log := s.log.With(slog.String("op", op), slog.String("RemoteAddr", r.RemoteAddr))

	select {
	case s.connLimiter <- struct{}{}:
	default:
		log.Warn("Too many connections, rejecting new connection")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-s.connLimiter }()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Warn("Failed to upgrade connection", sl.Err(err))
		return
	}

	c := &conn{
		ws: ws,
		caller: ipc.Caller{
			ID:         uuid.NewString(),
			RemoteAddr: r.RemoteAddr,
			Origin:     r.Header.Get("Origin"),
		},
		send: make(chan frame, sendBufferSize),
		done: make(chan struct{}),
	}
	c.log = log.With(slog.String("caller", c.caller.ID))

	s.wg.Add(1)
	defer s.wg.Done()

	s.track(c)
	defer s.untrack(c)

	c.log.Info("New connection established")
	defer c.log.Info("Connection closed")

	go c.writeLoop(s.cfg.WriteTimeout)
	s.readLoop(c)
}

func (s *Server) readLoop(c *conn) {
	var requests sync.WaitGroup
	defer func() {
		c.close()
		requests.Wait()
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Read failed", sl.Err(err))
			}
			return
		}

		var req frame
		if err := json.Unmarshal(data, &req); err != nil || req.Channel == "" {
			c.enqueue(frame{ID: req.ID, Fault: FaultBadFrame})
			continue
		}

		// обработчики не сериализуются, каждый запрос в своей горутине
		requests.Add(1)
		go func() {
			defer requests.Done()
			c.enqueue(s.handle(c, req))
		}()
	}
}

func (s *Server) handle(c *conn, req frame) frame {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	type result struct {
		resp ipc.Response
		err  error
	}
	out := make(chan result, 1)
	go func() {
		resp, err := s.invoker.Invoke(ctx, req.Channel, req.Payload, c.caller)
		out <- result{resp, err}
	}()

	select {
	case r := <-out:
		if errors.Is(r.err, ipc.ErrUnknownChannel) {
			return frame{ID: req.ID, Fault: FaultUnknownChannel}
		}
		if r.err != nil {
			resp := ipc.Fail(ipc.CodeUnknown, r.err.Error())
			return frame{ID: req.ID, Response: &resp}
		}
		return frame{ID: req.ID, Response: &r.resp}
	case <-ctx.Done():
		c.log.Warn("Request timed out",
			slog.String("channel", req.Channel),
			slog.Duration("timeout", s.cfg.RequestTimeout))
		resp := ipc.Fail(ipc.CodeUnknown, "request timed out")
		return frame{ID: req.ID, Response: &resp}
	case <-c.done:
		return frame{}
	}
}

// Broadcast pushes an event to every connected client. Slow clients whose
// send buffer is full miss the event.
func (s *Server) Broadcast(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.log.Error("Failed to encode event", slog.String("event", event), sl.Err(err))
		return
	}
	f := frame{Event: event, Data: raw}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns {
		select {
		case c.send <- f:
		case <-c.done:
		default:
			c.log.Warn("Send buffer full, dropping event", slog.String("event", event))
		}
	}
}

// Connections returns the number of open connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.conns {
		c.close()
	}
}

type conn struct {
	ws     *websocket.Conn
	caller ipc.Caller
	log    *slog.Logger

	send      chan frame
	done      chan struct{}
	closeOnce sync.Once
}

func (c *conn) enqueue(f frame) {
	if f.ID == "" && f.Event == "" && f.Fault == "" {
		return
	}
	select {
	case c.send <- f:
	case <-c.done:
	}
}

func (c *conn) writeLoop(timeout time.Duration) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
				c.close()
				return
			}
			if err := c.ws.WriteJSON(f); err != nil {
				c.log.Warn("Write failed", sl.Err(err))
				c.close()
				return
			}
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(origin, a) || strings.EqualFold(parsed.Hostname(), a) {
				return true
			}
		}
		return false
	}

	// без списка разрешаем только тот же хост
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	return parsed.Hostname() != "" && strings.EqualFold(parsed.Hostname(), host)
}
