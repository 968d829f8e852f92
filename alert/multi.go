package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// MultiSink fans out events to several sinks. A failing or panicking sink
// cannot prevent the remaining sinks from receiving the event.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMultiSink creates a fan-out over the given sinks. Nil sinks are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{
		sinks:  out,
		logger: slog.Default().With("component", "alert-multisink"),
	}
}

// Emit delivers ev to every sink, joining any errors.
func (m *MultiSink) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m.sinks {
		if err := m.emitOne(ctx, s, ev); err != nil {
			m.logger.Warn("Alert sink failed", "type", ev.Type, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) emitOne(ctx context.Context, s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert sink panicked: %v", r)
		}
	}()
	return s.Emit(ctx, ev)
}
