package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/c360/agroflow/errors"
	"github.com/c360/agroflow/natsclient"
	"github.com/c360/agroflow/pkg/retry"
)

// Publisher is the subset of natsclient.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

var _ Publisher = (*natsclient.Client)(nil)

// NATSSink publishes alert events to NATS subjects of the form
// alerts.<severity>.<type>.
type NATSSink struct {
	client      Publisher
	retryConfig retry.Config
	logger      *slog.Logger
}

// NewNATSSink creates a sink that publishes through client.
func NewNATSSink(client Publisher) *NATSSink {
	return &NATSSink{
		client: client,
		retryConfig: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		logger: slog.Default().With("component", "alert.NATSSink"),
	}
}

// Emit publishes the event, retrying transient publish failures.
func (s *NATSSink) Emit(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapInvalid(err, "NATSSink", "Emit", "marshal event")
	}

	subject := subjectFor(ev)
	err = retry.Do(ctx, s.retryConfig, func() error {
		pubErr := s.client.Publish(ctx, subject, data)
		if pubErr != nil && !errors.IsTransient(pubErr) {
			return retry.NonRetryable(pubErr)
		}
		return pubErr
	})
	if err != nil {
		s.logger.Warn("Alert publish failed", "subject", subject, "error", err)
		return errors.Wrap(err, "NATSSink", "Emit", "publish alert")
	}
	return nil
}

func subjectFor(ev Event) string {
	sev := strings.ToLower(string(ev.Severity))
	if sev == "" {
		sev = "low"
	}
	typ := ev.Type
	if typ == "" {
		typ = "unknown"
	}
	return "alerts." + sev + "." + typ
}
