package alert

import (
	"context"
	"time"

	"github.com/c360/agroflow/pkg/buffer"
)

// MemorySink keeps the most recent events in a bounded in-memory buffer.
// Used for tests and for the gateway's recent-alerts view.
type MemorySink struct {
	history *buffer.History[Event]
}

// NewMemorySink creates a sink holding up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{history: buffer.NewHistory[Event](capacity)}
}

// Emit records the event, stamping it if the emitter didn't.
func (s *MemorySink) Emit(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.history.Append(ev)
	return nil
}

// Recent returns up to limit events, most recent first.
func (s *MemorySink) Recent(limit int) []Event {
	return s.history.Recent(limit)
}

// Len returns the number of events currently held.
func (s *MemorySink) Len() int {
	return s.history.Len()
}
