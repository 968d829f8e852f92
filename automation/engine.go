package automation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/errors"
	"github.com/c360/agroflow/metric"
	"github.com/c360/agroflow/pkg/buffer"
	"github.com/c360/agroflow/pkg/pubsub"
)

// Submitter dispatches one actuator command. Satisfied by actionqueue.Queue.
type Submitter interface {
	Submit(actuatorID, action string, parameters map[string]any) (actuator.ActionRecord, error)
}

// Statistics aggregates rule state and execution counters.
type Statistics struct {
	Total           int     `json:"total"`
	Enabled         int     `json:"enabled"`
	Disabled        int     `json:"disabled"`
	TotalExecutions int64   `json:"total_executions"`
	TotalSuccesses  int64   `json:"total_successes"`
	TotalErrors     int64   `json:"total_errors"`
	SuccessRate     float64 `json:"success_rate"`
	DroppedReadings int64   `json:"dropped_readings"`
}

// Snapshot is the state handed to engine subscribers after every
// state-changing operation.
type Snapshot struct {
	Rules            []Rule            `json:"rules"`
	Statistics       Statistics        `json:"statistics"`
	RecentExecutions []ExecutionRecord `json:"recent_executions"`
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClock replaces the wall-clock source. Used by schedule-rule tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDelayUnit scales RuleAction.Delay. The default unit is one second.
func WithDelayUnit(unit time.Duration) Option {
	return func(e *Engine) { e.delayUnit = unit }
}

// WithHistoryCapacity bounds the execution history ring.
func WithHistoryCapacity(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.history = buffer.NewHistory[ExecutionRecord](n)
		}
	}
}

// Engine holds rule definitions and processes readings against them.
type Engine struct {
	queue   Submitter
	alerts  alert.Sink
	metrics *engineMetrics
	logger  *slog.Logger

	mu    sync.RWMutex
	rules map[string]*Rule
	order []string

	history *buffer.History[ExecutionRecord]
	broker  *pubsub.Broker[Snapshot]

	// processing guards the single in-flight reading pass. A reading
	// arriving while a pass is still dispatching is dropped, not queued;
	// the next periodic reading covers the gap.
	processing atomic.Bool
	dropped    atomic.Int64

	now       func() time.Time
	delayUnit time.Duration
}

// NewEngine creates a rule engine dispatching through the given submitter.
// A nil sink discards alerts; a nil metrics registry disables metrics.
func NewEngine(queue Submitter, sink alert.Sink, metrics *metric.Registry, opts ...Option) *Engine {
	if sink == nil {
		sink = alert.Discard
	}
	e := &Engine{
		queue:     queue,
		alerts:    sink,
		metrics:   newEngineMetrics(metrics),
		logger:    slog.Default().With("component", "automation-engine"),
		rules:     make(map[string]*Rule),
		history:   buffer.NewHistory[ExecutionRecord](1000),
		broker:    pubsub.NewBroker[Snapshot](),
		now:       time.Now,
		delayUnit: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateRule validates and stores a new rule, enabled with zeroed counters.
func (e *Engine) CreateRule(spec RuleSpec) (Rule, error) {
	if err := validateSpec(spec); err != nil {
		return Rule{}, err
	}

	rule := &Rule{
		ID:         "rule_" + uuid.NewString(),
		Name:       spec.Name,
		Type:       spec.Type,
		DeviceID:   spec.DeviceID,
		SensorType: spec.SensorType,
		Condition:  spec.Condition,
		Conditions: spec.Conditions,
		Schedule:   spec.Schedule,
		Actions:    spec.Actions,
		Enabled:    true,
		CreatedAt:  e.now(),
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.order = append(e.order, rule.ID)
	e.mu.Unlock()

	e.metrics.ruleCount(e.countRules())
	e.logger.Info("Rule created", "rule_id", rule.ID, "type", rule.Type, "name", rule.Name)
	e.notify()
	return rule.Clone(), nil
}

// UpdateRule replaces a rule's definition, preserving its id, enabled flag,
// and counters.
func (e *Engine) UpdateRule(id string, spec RuleSpec) (Rule, error) {
	if err := validateSpec(spec); err != nil {
		return Rule{}, err
	}

	e.mu.Lock()
	rule, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return Rule{}, ruleNotFound("UpdateRule", id)
	}
	rule.Name = spec.Name
	rule.Type = spec.Type
	rule.DeviceID = spec.DeviceID
	rule.SensorType = spec.SensorType
	rule.Condition = spec.Condition
	rule.Conditions = spec.Conditions
	rule.Schedule = spec.Schedule
	rule.Actions = spec.Actions
	out := rule.Clone()
	e.mu.Unlock()

	e.logger.Info("Rule updated", "rule_id", id)
	e.notify()
	return out, nil
}

// Toggle flips the rule's enabled flag and returns the updated rule.
func (e *Engine) Toggle(id string) (Rule, error) {
	e.mu.Lock()
	rule, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return Rule{}, ruleNotFound("Toggle", id)
	}
	rule.Enabled = !rule.Enabled
	out := rule.Clone()
	e.mu.Unlock()

	e.metrics.ruleCount(e.countRules())
	e.logger.Info("Rule toggled", "rule_id", id, "enabled", out.Enabled)
	e.notify()
	return out, nil
}

// Delete removes the rule. Executions already dispatched are unaffected.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return ruleNotFound("Delete", id)
	}
	delete(e.rules, id)
	for i, rid := range e.order {
		if rid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.metrics.ruleCount(e.countRules())
	e.logger.Info("Rule deleted", "rule_id", id)
	e.notify()
	return nil
}

// Rule returns a copy of the rule, with ok=false when absent.
func (e *Engine) Rule(id string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	if !ok {
		return Rule{}, false
	}
	return rule.Clone(), true
}

// Rules returns copies of all rules in insertion order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.rules[id].Clone())
	}
	return out
}

// ProcessReading evaluates all candidate rules against the reading and
// dispatches the matching rules' actions. Processing is single-flight: a
// reading arriving while a prior pass is still running is dropped and
// counted, never interleaved.
func (e *Engine) ProcessReading(ctx context.Context, deviceID string, reading Reading) {
	if !e.processing.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		e.metrics.readingDropped()
		e.logger.Debug("Reading dropped, prior pass still dispatching", "device_id", deviceID)
		return
	}
	defer e.processing.Store(false)

	e.metrics.readingProcessed()
	now := e.now()

	for _, rule := range e.candidates(deviceID, reading) {
		if !matches(rule, reading, now) {
			continue
		}
		e.metrics.ruleMatched()
		e.executeRule(ctx, rule, deviceID, reading)
	}
}

// candidates selects enabled rules bound to the device or to a sensor
// present in the reading.
func (e *Engine) candidates(deviceID string, reading Reading) []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Rule
	for _, id := range e.order {
		rule := e.rules[id]
		if !rule.Enabled {
			continue
		}
		if rule.DeviceID == deviceID && deviceID != "" {
			out = append(out, rule.Clone())
			continue
		}
		if rule.SensorType != "" {
			if _, ok := reading.Sensors[rule.SensorType]; ok {
				out = append(out, rule.Clone())
			}
		}
	}
	return out
}

// executeRule dispatches one matched rule's actions and records the attempt.
func (e *Engine) executeRule(ctx context.Context, rule Rule, deviceID string, reading Reading) {
	record := ExecutionRecord{
		ID:          "exec_" + uuid.NewString(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Timestamp:   e.now(),
		TriggerData: reading,
		Status:      ExecExecuting,
	}

	var execErr error
	if rule.Type == RuleSequence {
		record.Actions, execErr = e.dispatchSequence(ctx, rule, reading)
	} else {
		record.Actions, execErr = e.dispatchConcurrent(rule, reading)
	}

	success := execErr == nil
	if success {
		record.Status = ExecCompleted
	} else {
		record.Status = ExecFailed
		record.Error = execErr.Error()
	}

	e.settleRule(rule.ID, success)
	e.history.Append(record)
	e.metrics.executed(success)

	if success {
		e.logger.Info("Rule executed", "rule_id", rule.ID, "name", rule.Name,
			"actions", len(record.Actions))
		e.emitAlert(alert.TypeAutomationExecuted, alert.SeverityLow, deviceID, map[string]any{
			"rule_id":   rule.ID,
			"rule_name": rule.Name,
			"actions":   len(rule.Actions),
		})
	} else {
		e.logger.Error("Rule execution failed", "rule_id", rule.ID, "name", rule.Name,
			"error", execErr)
		e.emitAlert(alert.TypeAutomationError, alert.SeverityMedium, deviceID, map[string]any{
			"rule_id":   rule.ID,
			"rule_name": rule.Name,
			"error":     execErr.Error(),
		})
	}

	e.notify()
}

// dispatchSequence submits actions strictly in order, pausing for the
// action's delay after each submission. The first rejected submission aborts
// the remainder; already-dispatched actions are preserved in the outcomes.
func (e *Engine) dispatchSequence(ctx context.Context, rule Rule, reading Reading) ([]ActionOutcome, error) {
	outcomes := make([]ActionOutcome, 0, len(rule.Actions))
	for i, action := range rule.Actions {
		outcome := e.dispatchOne(action, reading)
		outcomes = append(outcomes, outcome)
		if outcome.Status == OutcomeFailed {
			for _, rest := range rule.Actions[i+1:] {
				outcomes = append(outcomes, ActionOutcome{
					ActuatorID: rest.ActuatorID,
					Action:     rest.Action,
					Status:     OutcomeSkipped,
				})
			}
			return outcomes, fmt.Errorf("%w: %s", errors.ErrRuleExecution, outcome.Error)
		}
		if action.Delay > 0 {
			if !sleepCtx(ctx, time.Duration(action.Delay*float64(e.delayUnit))) {
				return outcomes, nil
			}
		}
	}
	return outcomes, nil
}

// dispatchConcurrent submits all actions at once with no ordering guarantee.
func (e *Engine) dispatchConcurrent(rule Rule, reading Reading) ([]ActionOutcome, error) {
	outcomes := make([]ActionOutcome, len(rule.Actions))
	var wg sync.WaitGroup
	for i, action := range rule.Actions {
		wg.Add(1)
		go func(i int, action RuleAction) {
			defer wg.Done()
			outcomes[i] = e.dispatchOne(action, reading)
		}(i, action)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Status == OutcomeFailed {
			return outcomes, fmt.Errorf("%w: %s", errors.ErrRuleExecution, o.Error)
		}
	}
	return outcomes, nil
}

func (e *Engine) dispatchOne(action RuleAction, reading Reading) ActionOutcome {
	outcome := ActionOutcome{
		ActuatorID: action.ActuatorID,
		Action:     action.Action,
	}

	params := resolveParameters(action.Parameters, reading)
	rec, err := e.queue.Submit(action.ActuatorID, action.Action, params)
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = OutcomeDispatched
	outcome.ActionID = rec.ID
	return outcome
}

// settleRule updates the rule's counters. A rule deleted mid-dispatch is
// skipped; its execution record stands on its own.
func (e *Engine) settleRule(id string, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[id]
	if !ok {
		return
	}
	rule.ExecutionCount++
	if success {
		rule.SuccessCount++
		rule.LastExecuted = e.now()
	} else {
		rule.ErrorCount++
	}
}

// History returns up to limit execution records, most recent first.
// A negative limit returns all retained records.
func (e *Engine) History(limit int) []ExecutionRecord {
	return e.history.Recent(limit)
}

// Statistics computes the aggregate over all rules.
func (e *Engine) Statistics() Statistics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statisticsLocked()
}

func (e *Engine) statisticsLocked() Statistics {
	stats := Statistics{
		Total:           len(e.rules),
		DroppedReadings: e.dropped.Load(),
	}
	for _, rule := range e.rules {
		if rule.Enabled {
			stats.Enabled++
		} else {
			stats.Disabled++
		}
		stats.TotalExecutions += rule.ExecutionCount
		stats.TotalSuccesses += rule.SuccessCount
		stats.TotalErrors += rule.ErrorCount
	}
	if stats.TotalExecutions > 0 {
		stats.SuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalExecutions) * 100
	}
	return stats
}

// Subscribe registers a callback invoked synchronously with a full snapshot
// after every state-changing operation. The returned unsubscribe function is
// idempotent.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	return e.broker.Subscribe(fn)
}

func (e *Engine) notify() {
	e.mu.RLock()
	snap := Snapshot{
		Rules:      make([]Rule, 0, len(e.order)),
		Statistics: e.statisticsLocked(),
	}
	for _, id := range e.order {
		snap.Rules = append(snap.Rules, e.rules[id].Clone())
	}
	e.mu.RUnlock()
	snap.RecentExecutions = e.history.Recent(25)

	e.broker.Publish(snap)
}

func (e *Engine) emitAlert(eventType string, severity alert.Severity, deviceID string, data map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.alerts.Emit(ctx, alert.Event{
		Type:     eventType,
		Severity: severity,
		DeviceID: deviceID,
		Data:     data,
	}); err != nil {
		e.logger.Warn("Alert emit failed", "type", eventType, "error", err)
	}
}

func (e *Engine) countRules() (enabled, total int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rule := range e.rules {
		if rule.Enabled {
			enabled++
		}
	}
	return enabled, len(e.rules)
}

// resolveParameters replaces "${sensor}" placeholder values with the
// sensor's current numeric value. Unresolved placeholders pass through
// unchanged.
func resolveParameters(params map[string]any, reading Reading) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		out[key] = value
		s, ok := value.(string)
		if !ok || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
			continue
		}
		name := s[2 : len(s)-1]
		if sv, ok := reading.Sensors[name]; ok {
			out[key] = sv.Value
		}
	}
	return out
}

func validateSpec(spec RuleSpec) error {
	if !spec.Type.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("unknown rule type %q", spec.Type),
			"Engine", "CreateRule", "validate type")
	}
	if len(spec.Actions) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("rule has no actions"),
			"Engine", "CreateRule", "validate actions")
	}
	switch spec.Type {
	case RuleThreshold, RuleSequence:
		if spec.SensorType == "" || spec.Condition == nil {
			return errors.WrapInvalid(
				fmt.Errorf("%s rule requires sensor_type and condition", spec.Type),
				"Engine", "CreateRule", "validate condition")
		}
	case RuleSchedule:
		if spec.Schedule == nil || spec.Schedule.Type != "daily" {
			return errors.WrapInvalid(
				fmt.Errorf("schedule rule requires a daily schedule"),
				"Engine", "CreateRule", "validate schedule")
		}
	case RuleConditional:
		if len(spec.Conditions) == 0 {
			return errors.WrapInvalid(
				fmt.Errorf("conditional rule requires conditions"),
				"Engine", "CreateRule", "validate conditions")
		}
	}
	return nil
}

func ruleNotFound(method, id string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrRuleNotFound, id),
		"Engine", method, "lookup rule")
}

// sleepCtx pauses for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
