package server

import (
	"context"
	"sync"

	"github.com/FrenchMajesty/turbo-retry/utils/retry"
)

// EventLog drains executor events into a bounded in-memory history
type EventLog struct {
	ch chan *retry.Event

	mu     sync.RWMutex
	events []*retry.Event
	next   int
	full   bool
}

// NewEventLog creates a log keeping the last size events
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = 256
	}
	return &EventLog{
		ch:     make(chan *retry.Event, size),
		events: make([]*retry.Event, size),
	}
}

// Channel is handed to executors through retry.WithEvents
func (l *EventLog) Channel() chan<- *retry.Event {
	return l.ch
}

// Run records events until ctx is done
func (l *EventLog) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-l.ch:
			l.add(event)
		}
	}
}

func (l *EventLog) add(event *retry.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events[l.next] = event
	l.next = (l.next + 1) % len(l.events)
	if l.next == 0 {
		l.full = true
	}
}

// Recent returns up to n events, oldest first
func (l *EventLog) Recent(n int) []*retry.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := l.next
	if l.full {
		count = len(l.events)
	}
	if n <= 0 || n > count {
		n = count
	}

	out := make([]*retry.Event, 0, n)
	for i := count - n; i < count; i++ {
		idx := i
		if l.full {
			idx = (l.next + i) % len(l.events)
		}
		out = append(out, l.events[idx])
	}
	return out
}
