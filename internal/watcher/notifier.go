package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"deskd/internal/util/logger/sl"
)

type state int

const (
	stateStopped state = iota
	stateStarting
	stateRunning
)

// Notifier turns raw filesystem notifications into ChangeEvents and
// republishes them to subscribers. It has two observable states, stopped
// and running; between Start and the ready signal it is starting, which
// reads as not running but already makes Start a no-op.
type Notifier struct {
	config    Config
	ignore    *Matcher
	newSource func() Source
	log       *slog.Logger
	metrics   *NotifierMetrics

	mu    sync.Mutex
	state state
	cur   *run
	done  chan struct{}

	subsMu sync.RWMutex
	subs   map[Signal][]subscriber
	nextID uint64
}

type subscriber struct {
	id uint64
	fn func(Notification)
}

type itemKind int

const (
	itemEvent itemKind = iota
	itemError
	itemReady
	itemFailed
)

type item struct {
	kind  itemKind
	event ChangeEvent
	err   error
}

// run holds everything that belongs to one Start..Stop cycle.
type run struct {
	src      Source
	queue    chan item
	errs     chan item
	quit     chan struct{}
	loopDone chan struct{}
}

type Option func(*Notifier)

// WithSource replaces the platform source, mostly for tests.
func WithSource(factory func() Source) Option {
	return func(n *Notifier) {
		n.newSource = factory
	}
}

// NewNotifier captures config; later changes to the caller's copy have no
// effect.
func NewNotifier(config Config, opts ...Option) (*Notifier, error) {
	if config.RootPath == "" {
		return nil, fmt.Errorf("%w: root path is empty", ErrInvalidPath)
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.StabilityThreshold < 0 {
		config.StabilityThreshold = 0
	} else if config.StabilityThreshold == 0 {
		config.StabilityThreshold = DefaultStabilityThreshold
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PollingInterval <= 0 {
		config.PollingInterval = DefaultPollingInterval
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	config.IgnorePatterns = append([]string(nil), config.IgnorePatterns...)
	ignoreInitial := config.ignoreInitial()
	config.IgnoreInitial = &ignoreInitial

	ignore, err := NewMatcher(config.RootPath, config.IgnorePatterns)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)

	n := &Notifier{
		config:  config,
		ignore:  ignore,
		log:     config.Logger.With(slog.String("component", "notifier"), slog.String("root", config.RootPath)),
		metrics: NewNotifierMetrics(),
		done:    done,
		subs:    make(map[Signal][]subscriber),
	}
	n.newSource = n.defaultSource
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

func (n *Notifier) defaultSource() Source {
	opts := SourceOptions{
		IgnoreInitial:      n.config.ignoreInitial(),
		StabilityThreshold: n.config.StabilityThreshold,
		PollInterval:       n.config.PollInterval,
		Interval:           n.config.PollingInterval,
		Logger:             n.config.Logger,
	}
	if n.config.UsePolling {
		return NewPollSource(opts)
	}
	return NewFSNotifySource(opts)
}

// WatchPath returns the configured root.
func (n *Notifier) WatchPath() string {
	return n.config.RootPath
}

// Persistent reports whether the host should stay alive while watching.
func (n *Notifier) Persistent() bool {
	return n.config.Persistent
}

// Running reports whether the initial scan has completed and the notifier
// has not been stopped since.
func (n *Notifier) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state == stateRunning
}

// Done is closed when the current run ends, either through Stop or because
// the watch could not be established. It is already closed while stopped.
func (n *Notifier) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// Ignored reports whether path is excluded by the effective ignore patterns.
func (n *Notifier) Ignored(path string, isDir bool) bool {
	return n.ignore.Ignored(path, isDir)
}

func (n *Notifier) Metrics() *NotifierMetrics {
	return n.metrics
}

// Start begins observation. It returns immediately; ready is emitted once
// the initial scan completes. Failures to establish the watch are reported
// through the error signal, after which the notifier is stopped again.
// Calling Start while starting or running does nothing.
func (n *Notifier) Start() {
	n.mu.Lock()
	if n.state != stateStopped {
		n.mu.Unlock()
		return
	}
	r := &run{
		src:      n.newSource(),
		queue:    make(chan item, n.config.BufferSize),
		errs:     make(chan item, n.config.BufferSize),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	n.cur = r
	n.state = stateStarting
	n.done = make(chan struct{})
	n.mu.Unlock()

	n.log.Debug("starting")

	go n.dispatch(r)
	go n.establish(r)
}

func (n *Notifier) establish(r *run) {
	err := r.src.Subscribe(n.config.RootPath, n.ignore, &runSink{n: n, r: r})
	if err == nil {
		return
	}
	select {
	case <-r.quit:
		// stopped while scanning
		return
	default:
	}
	r.push(item{kind: itemError, err: fmt.Errorf("failed to watch %s: %w", n.config.RootPath, err)})
	r.push(item{kind: itemFailed})
}

// Stop tears down the watch and emits stopped. It waits for in-flight
// deliveries to finish or ctx to expire, so a listener that wants to stop
// the notifier has to do it from another goroutine. Calling Stop while
// stopped does nothing.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.state == stateStopped {
		n.mu.Unlock()
		return nil
	}
	r := n.cur
	n.cur = nil
	n.state = stateStopped
	done := n.done
	n.mu.Unlock()

	close(r.quit)
	closeErr := r.src.Close()

	var waitErr error
	select {
	case <-r.loopDone:
	case <-ctx.Done():
		waitErr = ctx.Err()
		n.log.Warn("stop timed out waiting for listeners", sl.Err(waitErr))
	}

	close(done)
	n.log.Debug("stopped")
	n.emit(Notification{Signal: SignalStopped})

	if closeErr != nil {
		return fmt.Errorf("failed to close source: %w", closeErr)
	}
	return waitErr
}

func (n *Notifier) dispatch(r *run) {
	defer close(r.loopDone)

	for {
		var it item
		// ошибки не должны застревать за событиями
		select {
		case <-r.quit:
			return
		case it = <-r.errs:
		default:
			select {
			case <-r.quit:
				return
			case it = <-r.errs:
			case it = <-r.queue:
			}
		}

		select {
		case <-r.quit:
			return
		default:
		}

		switch it.kind {
		case itemEvent:
			n.metrics.RecordEvent(it.event.Kind)
			ev := it.event
			n.emit(Notification{Signal: SignalFile, Event: &ev})
			n.emit(Notification{Signal: ev.Kind.Signal(), Event: &ev})
		case itemError:
			n.metrics.RecordError()
			n.emit(Notification{Signal: SignalError, Err: it.err})
		case itemReady:
			if !n.transition(r, stateRunning) {
				return
			}
			n.log.Info("watching", slog.Int("ignore_patterns", len(n.ignore.Patterns())))
			n.emit(Notification{Signal: SignalReady})
		case itemFailed:
			n.mu.Lock()
			if n.cur == r {
				n.cur = nil
				n.state = stateStopped
				close(n.done)
			}
			n.mu.Unlock()
			_ = r.src.Close()
			return
		}
	}
}

func (n *Notifier) transition(r *run, to state) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cur != r {
		return false
	}
	n.state = to
	return true
}

func (r *run) push(it item) {
	select {
	case r.queue <- it:
	case <-r.quit:
	}
}

// runSink adapts a Source to one run of the notifier.
type runSink struct {
	n *Notifier
	r *run
}

func (s *runSink) Event(raw RawEvent) {
	kind := raw.Op.kind()
	if kind == "" {
		return
	}
	s.r.push(item{kind: itemEvent, event: ChangeEvent{
		Kind:       kind,
		Path:       raw.Path,
		ObservedAt: time.Now().UTC(),
	}})
}

func (s *runSink) Error(err error) {
	select {
	case s.r.errs <- item{kind: itemError, err: err}:
	case <-s.r.quit:
	default:
		s.n.metrics.RecordDropped()
		s.n.log.Warn("error buffer full, dropping error", sl.Err(err))
	}
}

func (s *runSink) Ready() {
	s.r.push(item{kind: itemReady})
}

// On subscribes fn to a signal and returns a function that removes the
// subscription. Listeners run on the notifier's delivery goroutine, one at
// a time, in subscription order.
func (n *Notifier) On(signal Signal, fn func(Notification)) (unsubscribe func()) {
	n.subsMu.Lock()
	n.nextID++
	id := n.nextID
	n.subs[signal] = append(n.subs[signal], subscriber{id: id, fn: fn})
	n.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.subsMu.Lock()
			defer n.subsMu.Unlock()
			list := n.subs[signal]
			for i, sub := range list {
				if sub.id == id {
					n.subs[signal] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// OnFile receives every ChangeEvent.
func (n *Notifier) OnFile(fn func(ChangeEvent)) func() {
	return n.On(SignalFile, func(nt Notification) { fn(*nt.Event) })
}

// OnKind receives only events of the given kind.
func (n *Notifier) OnKind(kind Kind, fn func(ChangeEvent)) func() {
	return n.On(kind.Signal(), func(nt Notification) { fn(*nt.Event) })
}

func (n *Notifier) OnReady(fn func()) func() {
	return n.On(SignalReady, func(Notification) { fn() })
}

func (n *Notifier) OnStopped(fn func()) func() {
	return n.On(SignalStopped, func(Notification) { fn() })
}

// OnError receives watch faults. They are never fatal; the subscriber
// decides what to do. Subscribe before Start to see establishment errors.
func (n *Notifier) OnError(fn func(error)) func() {
	return n.On(SignalError, func(nt Notification) { fn(nt.Err) })
}

func (n *Notifier) emit(nt Notification) {
	n.subsMu.RLock()
	list := append([]subscriber(nil), n.subs[nt.Signal]...)
	n.subsMu.RUnlock()

	if nt.Signal == SignalError && len(list) == 0 {
		n.log.Warn("unhandled watcher error", sl.Err(nt.Err))
		return
	}

	for _, sub := range list {
		n.call(sub, nt)
	}
}

func (n *Notifier) call(sub subscriber, nt Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			n.metrics.RecordListenerPanic()
			err := fmt.Errorf("listener for %q panicked: %v", nt.Signal, rec)
			if nt.Signal == SignalError {
				n.log.Error("error listener panicked", sl.Err(err))
				return
			}
			n.emit(Notification{Signal: SignalError, Err: err})
		}
	}()
	sub.fn(nt)
}
