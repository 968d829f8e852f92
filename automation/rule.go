// Package automation evaluates stored rules against incoming sensor readings
// and dispatches matching rules' actions through the action queue. Rules are
// held in memory; the engine is a plain service object constructed once at
// process start and shared by reference.
package automation

import (
	"bytes"
	"encoding/json"
	"time"
)

// RuleType selects the match predicate applied to a rule.
type RuleType string

// Rule types
const (
	RuleThreshold   RuleType = "threshold"
	RuleSchedule    RuleType = "schedule"
	RuleConditional RuleType = "conditional"
	RuleSequence    RuleType = "sequence"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case RuleThreshold, RuleSchedule, RuleConditional, RuleSequence:
		return true
	}
	return false
}

// ConditionOp is a comparison operator for threshold-style conditions.
type ConditionOp string

// Condition operators
const (
	OpGreaterThan ConditionOp = "greater_than"
	OpLessThan    ConditionOp = "less_than"
	OpEquals      ConditionOp = "equals"
	OpBetween     ConditionOp = "between"
)

// equalsEpsilon bounds the equals comparison: |value - threshold| < epsilon.
const equalsEpsilon = 0.01

// Condition is a threshold comparison. Min and Max are read only when
// Op == OpBetween; Threshold is read for the other operators.
type Condition struct {
	Op        ConditionOp `json:"condition"`
	Threshold float64     `json:"threshold,omitempty"`
	Min       float64     `json:"min,omitempty"`
	Max       float64     `json:"max,omitempty"`
}

// UnmarshalJSON accepts both threshold shapes: a scalar for the comparison
// operators, and a {"min": ..., "max": ...} object for between. Flat min and
// max keys are honored either way.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Op        ConditionOp     `json:"condition"`
		Threshold json.RawMessage `json:"threshold"`
		Min       float64         `json:"min"`
		Max       float64         `json:"max"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Condition{Op: raw.Op, Min: raw.Min, Max: raw.Max}

	thr := bytes.TrimSpace(raw.Threshold)
	switch {
	case len(thr) == 0 || bytes.Equal(thr, []byte("null")):
		return nil
	case thr[0] == '{':
		var bounds struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		}
		if err := json.Unmarshal(thr, &bounds); err != nil {
			return err
		}
		c.Min = bounds.Min
		c.Max = bounds.Max
		return nil
	default:
		return json.Unmarshal(thr, &c.Threshold)
	}
}

// SensorCondition is one clause of a conditional rule. Only greater_than and
// less_than are admitted; all clauses must hold for the rule to match.
type SensorCondition struct {
	SensorType string      `json:"sensor_type"`
	Op         ConditionOp `json:"condition"`
	Threshold  float64     `json:"threshold"`
}

// Schedule triggers a rule at a daily wall-clock time. Matching tolerates a
// one-minute window around hour:minute and fires at most once per calendar
// day.
type Schedule struct {
	Type   string `json:"type"` // "daily" is the only supported type
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
}

// RuleAction is one actuator command dispatched when a rule matches.
// Parameter values written as "${sensor}" are replaced with that sensor's
// current reading before dispatch. Delay is honored only by sequence rules,
// as a pause before this action is dispatched.
type RuleAction struct {
	ActuatorID string         `json:"actuator_id"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Delay      float64        `json:"delay,omitempty"` // seconds
}

// Rule is a stored condition-to-action mapping.
type Rule struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Type       RuleType `json:"type"`
	DeviceID   string   `json:"device_id,omitempty"`
	SensorType string   `json:"sensor_type,omitempty"`

	Condition  *Condition        `json:"condition,omitempty"`
	Conditions []SensorCondition `json:"conditions,omitempty"`
	Schedule   *Schedule         `json:"schedule,omitempty"`
	Actions    []RuleAction      `json:"actions"`

	Enabled bool `json:"enabled"`

	// Counters satisfy ExecutionCount == SuccessCount + ErrorCount after
	// every attempted execution.
	ExecutionCount int64     `json:"execution_count"`
	SuccessCount   int64     `json:"success_count"`
	ErrorCount     int64     `json:"error_count"`
	LastExecuted   time.Time `json:"last_executed,omitzero"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	out := r
	if r.Condition != nil {
		c := *r.Condition
		out.Condition = &c
	}
	if r.Schedule != nil {
		s := *r.Schedule
		out.Schedule = &s
	}
	if r.Conditions != nil {
		out.Conditions = make([]SensorCondition, len(r.Conditions))
		copy(out.Conditions, r.Conditions)
	}
	if r.Actions != nil {
		out.Actions = make([]RuleAction, len(r.Actions))
		for i, a := range r.Actions {
			out.Actions[i] = a
			if a.Parameters != nil {
				params := make(map[string]any, len(a.Parameters))
				for k, v := range a.Parameters {
					params[k] = v
				}
				out.Actions[i].Parameters = params
			}
		}
	}
	return out
}

// RuleSpec carries the caller-supplied fields for creating or replacing a
// rule definition.
type RuleSpec struct {
	Name       string            `json:"name"`
	Type       RuleType          `json:"type"`
	DeviceID   string            `json:"device_id,omitempty"`
	SensorType string            `json:"sensor_type,omitempty"`
	Condition  *Condition        `json:"condition,omitempty"`
	Conditions []SensorCondition `json:"conditions,omitempty"`
	Schedule   *Schedule         `json:"schedule,omitempty"`
	Actions    []RuleAction      `json:"actions"`
}

// SensorValue is one named measurement inside a reading.
type SensorValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Reading quality levels
const (
	QualityGood = "good"
	QualityPoor = "poor"
)

// Reading is a timestamped bundle of sensor values attributed to one device.
type Reading struct {
	Timestamp time.Time              `json:"timestamp"`
	Sensors   map[string]SensorValue `json:"sensors"`
	Quality   string                 `json:"quality,omitempty"`
}

// OutcomeStatus tracks a per-action dispatch result inside an execution
// record.
type OutcomeStatus string

// Action outcome statuses
const (
	OutcomeDispatched OutcomeStatus = "dispatched"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeSkipped    OutcomeStatus = "skipped"
)

// ActionOutcome is the per-action entry in an execution record. Partial
// completion is preserved: actions dispatched before a failure keep their
// dispatched outcome.
type ActionOutcome struct {
	ActuatorID string        `json:"actuator_id"`
	Action     string        `json:"action"`
	ActionID   string        `json:"action_id,omitempty"` // queue record id once dispatched
	Status     OutcomeStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// ExecStatus is the lifecycle state of an execution record.
type ExecStatus string

// Execution record statuses
const (
	ExecExecuting ExecStatus = "executing"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
)

// ExecutionRecord is an immutable audit entry capturing one
// rule-trigger-to-actions-dispatched event. RuleName is denormalized so the
// entry survives rule deletion.
type ExecutionRecord struct {
	ID          string          `json:"id"`
	RuleID      string          `json:"rule_id"`
	RuleName    string          `json:"rule_name"`
	Timestamp   time.Time       `json:"timestamp"`
	TriggerData Reading         `json:"trigger_data"`
	Actions     []ActionOutcome `json:"actions"`
	Status      ExecStatus      `json:"status"`
	Error       string          `json:"error,omitempty"`
}
