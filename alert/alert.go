// Package alert defines the structured alert events emitted by the action
// queue and the automation engine, and the sinks that deliver them.
// Formatting and delivery (email, SMS, push) are the sink's concern; the
// core only guarantees one event per settled action and one per settled rule
// execution.
package alert

import (
	"context"
	"time"
)

// Severity orders alert events by urgency.
type Severity string

// Alert severities
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Well-known event types
const (
	TypeActionExecuted     = "action_executed"
	TypeActuatorError      = "actuator_error"
	TypeAutomationExecuted = "automation_executed"
	TypeAutomationError    = "automation_error"
	TypeDataQuality        = "data_quality"
)

// Event is one structured alert.
type Event struct {
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	DeviceID  string         `json:"device_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink receives alert events. Implementations must be safe for concurrent
// use; emitters treat a failed emit as non-fatal and log it.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Discard is a Sink that drops every event.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(context.Context, Event) error { return nil }
