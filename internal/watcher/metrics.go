package watcher

import (
	"sync"
	"sync/atomic"
	"time"
)

type NotifierMetrics struct {
	created       int64
	modified      int64
	removed       int64
	errors        int64
	dropped       int64
	listenerPanic int64

	mu            sync.Mutex
	lastEventTime time.Time
}

func NewNotifierMetrics() *NotifierMetrics {
	return &NotifierMetrics{}
}

func (m *NotifierMetrics) RecordEvent(kind Kind) {
	switch kind {
	case KindCreated:
		atomic.AddInt64(&m.created, 1)
	case KindModified:
		atomic.AddInt64(&m.modified, 1)
	case KindRemoved:
		atomic.AddInt64(&m.removed, 1)
	}
	m.mu.Lock()
	m.lastEventTime = time.Now()
	m.mu.Unlock()
}

func (m *NotifierMetrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

func (m *NotifierMetrics) RecordDropped() {
	atomic.AddInt64(&m.dropped, 1)
}

func (m *NotifierMetrics) RecordListenerPanic() {
	atomic.AddInt64(&m.listenerPanic, 1)
}

func (m *NotifierMetrics) GetStats() map[string]interface{} {
	m.mu.Lock()
	last := m.lastEventTime
	m.mu.Unlock()

	return map[string]interface{}{
		"created":         atomic.LoadInt64(&m.created),
		"modified":        atomic.LoadInt64(&m.modified),
		"removed":         atomic.LoadInt64(&m.removed),
		"errors":          atomic.LoadInt64(&m.errors),
		"dropped":         atomic.LoadInt64(&m.dropped),
		"listener_panics": atomic.LoadInt64(&m.listenerPanic),
		"last_event_time": last,
	}
}
