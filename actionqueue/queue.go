// Package actionqueue executes actuator commands one at a time. The queue is
// the single serialization point for actuator state: at most one action is
// executing at any instant across the whole system, regardless of how many
// actuators exist. Submissions validate synchronously and fail fast; execution
// outcomes surface through action records, alerts, and snapshot subscriptions.
package actionqueue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/component"
	"github.com/c360/agroflow/errors"
	"github.com/c360/agroflow/metric"
	"github.com/c360/agroflow/pkg/buffer"
	"github.com/c360/agroflow/pkg/pubsub"
)

// Config holds queue tuning parameters
type Config struct {
	// Simulated execution latency drawn uniformly from [MinLatency, MaxLatency).
	MinLatency time.Duration
	MaxLatency time.Duration

	// QueueCapacity bounds pending submissions; Submit rejects when full.
	QueueCapacity int

	// HistoryCapacity bounds the terminal-record ring.
	HistoryCapacity int

	// EnforceSafetyLimits fails actions whose parameters exceed the
	// actuator's configured maxima. Off by default: stored limits are
	// advisory unless an operator opts in.
	EnforceSafetyLimits bool
}

// DefaultConfig returns the standard queue configuration.
func DefaultConfig() Config {
	return Config{
		MinLatency:      1 * time.Second,
		MaxLatency:      4 * time.Second,
		QueueCapacity:   256,
		HistoryCapacity: 1000,
	}
}

// Statistics combines the registry aggregate with queue-local counters.
type Statistics struct {
	actuator.Statistics
	Pending   int   `json:"pending"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Snapshot is the state handed to queue subscribers after every
// state-changing operation.
type Snapshot struct {
	Actuators     []actuator.Actuator     `json:"actuators"`
	Statistics    Statistics              `json:"statistics"`
	RecentHistory []actuator.ActionRecord `json:"recent_history"`
}

type task struct {
	record actuator.ActionRecord
	params actuator.ActionParams
}

// Queue accepts action requests and drains them through a single worker.
type Queue struct {
	config   Config
	registry *actuator.Registry
	alerts   alert.Sink
	metrics  *queueMetrics
	logger   *slog.Logger

	tasks   chan task
	history *buffer.History[actuator.ActionRecord]
	broker  *pubsub.Broker[Snapshot]
	rng     *rand.Rand // worker-only, no lock needed

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu          sync.Mutex
	state       component.State
	startTime   time.Time
	lastError   string
	shutdown    chan struct{}
	done        chan struct{}
	unsubscribe func()
}

// NewQueue creates an action queue over the given registry. A nil sink
// discards alerts; a nil metrics registry disables metrics.
func NewQueue(registry *actuator.Registry, sink alert.Sink, cfg Config, metrics *metric.Registry) *Queue {
	if sink == nil {
		sink = alert.Discard
	}
	if cfg.MinLatency <= 0 {
		cfg.MinLatency = DefaultConfig().MinLatency
	}
	if cfg.MaxLatency <= cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency + 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = DefaultConfig().HistoryCapacity
	}

	return &Queue{
		config:   cfg,
		registry: registry,
		alerts:   sink,
		metrics:  newQueueMetrics(metrics),
		logger:   slog.Default().With("component", "action-queue"),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		state:    component.StateCreated,
	}
}

// Meta implements component.LifecycleComponent.
func (q *Queue) Meta() component.Metadata {
	return component.Metadata{
		Name:        "action-queue",
		Type:        "core",
		Description: "Serialized actuator action execution",
		Version:     "1.0.0",
	}
}

// Health implements component.LifecycleComponent.
func (q *Queue) Health() component.HealthStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := component.HealthStatus{
		Healthy:    q.state == component.StateStarted,
		LastCheck:  time.Now(),
		LastError:  q.lastError,
		ErrorCount: int(q.failed.Load()),
	}
	if !q.startTime.IsZero() {
		h.Uptime = time.Since(q.startTime)
	}
	return h
}

// Initialize allocates the task channel, history ring, and broker, and hooks
// the registry so actuator changes re-fire enriched snapshots to subscribers.
func (q *Queue) Initialize() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state != component.StateCreated {
		return errors.WrapInvalid(
			fmt.Errorf("cannot initialize from state %s", q.state),
			"Queue", "Initialize", "check state")
	}
	if q.registry == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Queue", "Initialize", "require registry")
	}

	q.tasks = make(chan task, q.config.QueueCapacity)
	q.history = buffer.NewHistory[actuator.ActionRecord](q.config.HistoryCapacity)
	q.broker = pubsub.NewBroker[Snapshot]()
	q.unsubscribe = q.registry.Subscribe(q.republish)
	q.state = component.StateInitialized
	return nil
}

// Start launches the worker loop.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case component.StateStarted:
		return errors.ErrAlreadyStarted
	case component.StateInitialized:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("cannot start from state %s", q.state),
			"Queue", "Start", "check state")
	}

	q.shutdown = make(chan struct{})
	q.done = make(chan struct{})
	q.startTime = time.Now()
	q.state = component.StateStarted

	go q.run(ctx)

	q.logger.Info("Action queue started",
		"queue_capacity", q.config.QueueCapacity,
		"history_capacity", q.config.HistoryCapacity,
		"enforce_safety_limits", q.config.EnforceSafetyLimits)
	return nil
}

// Stop signals the worker and waits up to timeout for it to exit. Pending
// submissions are abandoned; the process owns no durable state to flush.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if q.state != component.StateStarted {
		q.mu.Unlock()
		return errors.ErrNotStarted
	}
	close(q.shutdown)
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		q.mu.Lock()
		q.state = component.StateFailed
		q.lastError = "worker did not stop within timeout"
		q.mu.Unlock()
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Queue", "Stop", "wait for worker")
	}

	q.mu.Lock()
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
	q.state = component.StateStopped
	q.mu.Unlock()

	q.logger.Info("Action queue stopped")
	return nil
}

// Submit validates the request and enqueues it. The returned record is
// pending; execution is asynchronous and its terminal state is observed via
// History, alerts, or subscription snapshots.
func (q *Queue) Submit(actuatorID, action string, parameters map[string]any) (actuator.ActionRecord, error) {
	q.mu.Lock()
	started := q.state == component.StateStarted
	q.mu.Unlock()
	if !started {
		return actuator.ActionRecord{}, errors.WrapInvalid(
			errors.ErrNotStarted, "Queue", "Submit", "check state")
	}

	act, err := q.registry.MustGet(actuatorID)
	if err != nil {
		q.metrics.rejected("not_found")
		return actuator.ActionRecord{}, err
	}
	if act.Status == actuator.StatusDisabled {
		q.metrics.rejected("disabled")
		return actuator.ActionRecord{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrActuatorDisabled, actuatorID),
			"Queue", "Submit", "check status")
	}
	if !act.Type.Supports(action) {
		q.metrics.rejected("unsupported")
		return actuator.ActionRecord{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s does not support %q", errors.ErrUnsupportedAction, act.Type, action),
			"Queue", "Submit", "check action")
	}
	params, err := actuator.DecodeParams(act.Type, parameters)
	if err != nil {
		q.metrics.rejected("invalid_parameters")
		return actuator.ActionRecord{}, err
	}

	rec := actuator.ActionRecord{
		ID:         "action_" + uuid.NewString(),
		ActuatorID: actuatorID,
		Action:     action,
		Parameters: parameters,
		Status:     actuator.ActionPending,
		Timestamp:  time.Now(),
	}

	select {
	case q.tasks <- task{record: rec.Clone(), params: params}:
	default:
		q.metrics.rejected("queue_full")
		return actuator.ActionRecord{}, errors.WrapTransient(
			errors.ErrQueueFull, "Queue", "Submit", "enqueue action")
	}

	q.submitted.Add(1)
	q.metrics.submittedInc()
	q.metrics.depthSet(len(q.tasks))
	q.logger.Debug("Action submitted",
		"action_id", rec.ID, "actuator_id", actuatorID, "action", action)
	return rec, nil
}

// History returns up to limit terminal records, most recent first.
// A negative limit returns all retained records.
func (q *Queue) History(limit int) []actuator.ActionRecord {
	if q.history == nil {
		return nil
	}
	return q.history.Recent(limit)
}

// Statistics returns the registry aggregate plus queue counters.
func (q *Queue) Statistics() Statistics {
	stats := Statistics{
		Statistics: q.registry.Statistics(),
		Submitted:  q.submitted.Load(),
		Completed:  q.completed.Load(),
		Failed:     q.failed.Load(),
	}
	if q.tasks != nil {
		stats.Pending = len(q.tasks)
	}
	return stats
}

// Subscribe registers a callback invoked with an enriched snapshot after
// every actuator state change. The returned unsubscribe is idempotent.
func (q *Queue) Subscribe(fn func(Snapshot)) func() {
	return q.broker.Subscribe(fn)
}

func (q *Queue) republish(snap actuator.Snapshot) {
	q.broker.Publish(Snapshot{
		Actuators:     snap.Actuators,
		Statistics:    q.Statistics(),
		RecentHistory: q.history.Recent(25),
	})
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case t := <-q.tasks:
			q.metrics.depthSet(len(q.tasks))
			q.execute(ctx, t)
		}
	}
}

// execute drives one record through executing to its terminal state.
func (q *Queue) execute(ctx context.Context, t task) {
	rec := t.record
	rec.Status = actuator.ActionExecuting
	rec.StartedAt = time.Now()

	if err := q.registry.BeginAction(rec.ActuatorID, rec); err != nil {
		// Actuator vanished between submit and execute; settle the
		// record without touching registry state.
		q.settleOrphan(rec, err)
		return
	}

	if !q.simulateLatency(ctx) {
		// Process shutdown abandons the in-flight record.
		return
	}

	result, err := q.perform(rec, t.params)
	rec.CompletedAt = time.Now()

	if err != nil {
		rec.Status = actuator.ActionFailed
		rec.Error = err.Error()
		q.settle(rec, false)
		return
	}
	rec.Status = actuator.ActionCompleted
	rec.Result = result
	q.settle(rec, true)
}

// perform runs the safety gate and the type-specific simulation handler.
func (q *Queue) perform(rec actuator.ActionRecord, params actuator.ActionParams) (map[string]any, error) {
	if q.config.EnforceSafetyLimits {
		act, ok := q.registry.Get(rec.ActuatorID)
		if ok {
			if err := checkSafetyLimits(act, rec, params); err != nil {
				return nil, err
			}
		}
	}
	return simulate(rec.Action, params)
}

func (q *Queue) settle(rec actuator.ActionRecord, success bool) {
	q.history.Append(rec.Clone())

	if err := q.registry.SettleAction(rec.ActuatorID, rec, success); err != nil {
		q.logger.Warn("Settle failed", "action_id", rec.ID, "error", err)
	}

	duration := rec.CompletedAt.Sub(rec.StartedAt)
	if success {
		q.completed.Add(1)
		q.metrics.executed("completed", duration)
		q.logger.Info("Action completed",
			"action_id", rec.ID, "actuator_id", rec.ActuatorID,
			"action", rec.Action, "duration", duration)
		q.emitAlert(alert.TypeActionExecuted, alert.SeverityMedium, rec)
		return
	}

	q.failed.Add(1)
	q.setLastError(rec.Error)
	q.metrics.executed("failed", duration)
	q.logger.Error("Action failed",
		"action_id", rec.ID, "actuator_id", rec.ActuatorID,
		"action", rec.Action, "error", rec.Error)
	q.emitAlert(alert.TypeActuatorError, alert.SeverityHigh, rec)
}

// settleOrphan records a terminal failure for an action whose actuator is
// gone. No registry counters exist to update.
func (q *Queue) settleOrphan(rec actuator.ActionRecord, cause error) {
	rec.Status = actuator.ActionFailed
	rec.Error = cause.Error()
	rec.CompletedAt = time.Now()
	q.history.Append(rec.Clone())
	q.failed.Add(1)
	q.setLastError(rec.Error)
	q.metrics.executed("failed", 0)
	q.logger.Error("Action orphaned",
		"action_id", rec.ID, "actuator_id", rec.ActuatorID, "error", rec.Error)
	q.emitAlert(alert.TypeActuatorError, alert.SeverityHigh, rec)
}

func (q *Queue) emitAlert(eventType string, severity alert.Severity, rec actuator.ActionRecord) {
	data := map[string]any{
		"action_id":   rec.ID,
		"actuator_id": rec.ActuatorID,
		"action":      rec.Action,
	}
	if rec.Error != "" {
		data["error"] = rec.Error
	}
	if msg, ok := rec.Result["message"]; ok {
		data["message"] = msg
	}

	// The actuator can be gone on the orphan path; the event then carries
	// only the record fields.
	var deviceID string
	if act, ok := q.registry.Get(rec.ActuatorID); ok {
		deviceID = act.DeviceID
		data["device_name"] = act.Name
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.alerts.Emit(ctx, alert.Event{
		Type:     eventType,
		Severity: severity,
		DeviceID: deviceID,
		Data:     data,
	}); err != nil {
		q.logger.Warn("Alert emit failed", "action_id", rec.ID, "error", err)
	}
}

// simulateLatency sleeps for a uniform draw from the configured window.
// Returns false when the context was cancelled mid-sleep.
func (q *Queue) simulateLatency(ctx context.Context) bool {
	window := q.config.MaxLatency - q.config.MinLatency
	d := q.config.MinLatency + time.Duration(q.rng.Int63n(int64(window)))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-q.shutdown:
		return false
	case <-timer.C:
		return true
	}
}

func (q *Queue) setLastError(msg string) {
	q.mu.Lock()
	q.lastError = msg
	q.mu.Unlock()
}
