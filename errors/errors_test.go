package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"actuator not found", ErrActuatorNotFound, true},
		{"rule not found", ErrRuleNotFound, true},
		{"actuator disabled", ErrActuatorDisabled, true},
		{"unsupported action", ErrUnsupportedAction, true},
		{"invalid config", ErrInvalidConfig, true},
		{"wrapped not found", fmt.Errorf("submit: %w", ErrActuatorNotFound), true},
		{"connection lost", ErrConnectionLost, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"queue full", ErrQueueFull, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"actuator not found", ErrActuatorNotFound, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrActuatorNotFound) {
		t.Error("expected actuator not found to be not-found")
	}
	if !IsNotFound(fmt.Errorf("toggle: %w", ErrRuleNotFound)) {
		t.Error("expected wrapped rule not found to be not-found")
	}
	if IsNotFound(ErrActuatorDisabled) {
		t.Error("disabled is not a not-found error")
	}
	if IsNotFound(nil) {
		t.Error("nil is not a not-found error")
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	err := Wrap(base, "Queue", "Submit", "validate actuator")
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	expected := "Queue.Submit: validate actuator failed: boom"
	if err.Error() != expected {
		t.Errorf("expected %q, got %q", expected, err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("wrapped error should match base via errors.Is")
	}

	if Wrap(nil, "Queue", "Submit", "anything") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapClassified(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.wrap(base, "Engine", "ProcessReading", "dispatch")
			var ce *ClassifiedError
			if !errors.As(err, &ce) {
				t.Fatal("expected ClassifiedError")
			}
			if ce.Class != test.class {
				t.Errorf("expected class %v, got %v", test.class, ce.Class)
			}
			if !errors.Is(err, base) {
				t.Error("classified error should unwrap to base")
			}
			if !strings.Contains(err.Error(), "Engine.ProcessReading") {
				t.Errorf("expected component context in message, got %q", err.Error())
			}

			if test.wrap(nil, "Engine", "x", "y") != nil {
				t.Error("wrapping nil should return nil")
			}
		})
	}
}

func TestClassify(t *testing.T) {
	if Classify(ErrActuatorNotFound) != ErrorInvalid {
		t.Error("not found should classify as invalid")
	}
	if Classify(ErrConnectionLost) != ErrorTransient {
		t.Error("connection lost should classify as transient")
	}
	if Classify(errors.New("mystery")) != ErrorTransient {
		t.Error("unknown errors default to transient")
	}
}
