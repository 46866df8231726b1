package watcher

import (
	"os"
	"sync"
	"time"
)

// settler holds back create/write notifications until a file has stopped
// changing for the stability threshold. While a path is pending it is
// polled with os.Stat every interval; any size or mtime change restarts
// the quiet period.
type settler struct {
	threshold time.Duration
	interval  time.Duration
	flush     func(path string, op RawOp)

	mu      sync.Mutex
	pending map[string]*pendingWrite
	stopped bool
}

type pendingWrite struct {
	op         RawOp
	state      fileState
	lastChange time.Time
	timer      *time.Timer
	// the file disappeared while settling; the entry stays so that the
	// removal can still be matched against it
	gone bool
}

func newSettler(threshold, interval time.Duration, flush func(string, RawOp)) *settler {
	if interval <= 0 || (threshold > 0 && interval > threshold) {
		interval = threshold
	}
	return &settler{
		threshold: threshold,
		interval:  interval,
		flush:     flush,
		pending:   make(map[string]*pendingWrite),
	}
}

// Touch records activity on path. A pending create stays a create no matter
// how many writes follow it.
func (s *settler) Touch(path string, op RawOp) {
	if s.threshold <= 0 {
		s.flush(path, op)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if p, ok := s.pending[path]; ok {
		if p.op == RawCreate {
			op = RawCreate
		}
		p.op = op
		p.lastChange = time.Now()
		if p.gone {
			p.gone = false
			if info, err := os.Stat(path); err == nil {
				p.state = stateOf(info)
			}
			p.timer.Reset(s.interval)
		}
		return
	}

	p := &pendingWrite{op: op, lastChange: time.Now()}
	if info, err := os.Stat(path); err == nil {
		p.state = stateOf(info)
	}
	p.timer = time.AfterFunc(s.interval, func() { s.check(path) })
	s.pending[path] = p
}

// Cancel drops a pending notification and reports which op was pending,
// including one whose file vanished before it settled.
func (s *settler) Cancel(path string) (RawOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[path]
	if !ok {
		return 0, false
	}
	p.timer.Stop()
	delete(s.pending, path)
	return p.op, true
}

func (s *settler) check(path string) {
	s.mu.Lock()
	p, ok := s.pending[path]
	if !ok || s.stopped {
		s.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// removal is reported by the source, which Cancels the entry
		p.gone = true
		s.mu.Unlock()
		return
	}

	now := time.Now()
	if st := stateOf(info); st != p.state {
		p.state = st
		p.lastChange = now
	}
	if now.Sub(p.lastChange) < s.threshold {
		p.timer.Reset(s.interval)
		s.mu.Unlock()
		return
	}

	delete(s.pending, path)
	op := p.op
	s.mu.Unlock()

	s.flush(path, op)
}

func (s *settler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for path, p := range s.pending {
		p.timer.Stop()
		delete(s.pending, path)
	}
}
