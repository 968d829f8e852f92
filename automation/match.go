package automation

import (
	"math"
	"time"
)

// matches evaluates the rule's predicate against the reading at the given
// wall-clock instant. Non-matching rules are skipped with no side effect.
func matches(rule Rule, reading Reading, now time.Time) bool {
	switch rule.Type {
	case RuleThreshold, RuleSequence:
		// Sequence rules reuse threshold matching; their distinguishing
		// behavior is ordered dispatch, not the trigger.
		return matchThreshold(rule, reading)
	case RuleSchedule:
		return matchSchedule(rule, now)
	case RuleConditional:
		return matchConditional(rule, reading)
	default:
		return false
	}
}

func matchThreshold(rule Rule, reading Reading) bool {
	if rule.Condition == nil {
		return false
	}
	sv, ok := reading.Sensors[rule.SensorType]
	if !ok {
		return false
	}
	return compare(*rule.Condition, sv.Value)
}

func compare(c Condition, value float64) bool {
	switch c.Op {
	case OpGreaterThan:
		return value > c.Threshold
	case OpLessThan:
		return value < c.Threshold
	case OpEquals:
		return math.Abs(value-c.Threshold) < equalsEpsilon
	case OpBetween:
		// Inclusive at both ends.
		return value >= c.Min && value <= c.Max
	default:
		return false
	}
}

// matchSchedule fires when now is within one minute (inclusive) of the daily
// target and the rule has not already executed today.
func matchSchedule(rule Rule, now time.Time) bool {
	s := rule.Schedule
	if s == nil || s.Type != "daily" {
		return false
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
	diff := now.Sub(target)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Minute {
		return false
	}
	return !sameDay(rule.LastExecuted, now)
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// matchConditional requires every clause to hold. Only greater_than and
// less_than are admitted; a missing sensor or an unsupported operator makes
// the whole rule not match.
func matchConditional(rule Rule, reading Reading) bool {
	if len(rule.Conditions) == 0 {
		return false
	}
	for _, c := range rule.Conditions {
		sv, ok := reading.Sensors[c.SensorType]
		if !ok {
			return false
		}
		switch c.Op {
		case OpGreaterThan:
			if !(sv.Value > c.Threshold) {
				return false
			}
		case OpLessThan:
			if !(sv.Value < c.Threshold) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
