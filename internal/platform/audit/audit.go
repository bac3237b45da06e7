// Package audit keeps a bounded in-memory trail of operational events
// with an optional durable sink. Events never contain clinical detail
// beyond what the staff dashboard already shows.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxEvents bounds the in-memory trail; older events are discarded.
const MaxEvents = 200

// Event is a single recorded operational event.
type Event struct {
	Type    string                 `json:"event_type"`
	Details map[string]interface{} `json:"details"`
	TS      time.Time              `json:"ts"`
}

// Sink persists events beyond the in-memory window.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Log is a concurrency-safe ring of the most recent events.
type Log struct {
	mu     sync.Mutex
	events []Event
	sink   Sink
	logger zerolog.Logger
	now    func() time.Time
}

func New(logger zerolog.Logger, sink Sink) *Log {
	return &Log{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an event, trimming the ring to MaxEvents, and writes
// it to the sink when one is configured. Sink failures are logged and
// do not affect the in-memory trail.
func (l *Log) Record(eventType string, details map[string]interface{}) {
	e := Event{Type: eventType, Details: details, TS: l.now().UTC()}

	l.mu.Lock()
	l.events = append(l.events, e)
	if len(l.events) > MaxEvents {
		l.events = l.events[len(l.events)-MaxEvents:]
	}
	l.mu.Unlock()

	if l.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.sink.Record(ctx, e); err != nil {
			l.logger.Warn().Err(err).Str("event_type", eventType).Msg("audit sink write failed")
		}
	}
}

// Events returns a copy of the trail, oldest first.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
