package actuator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/agroflow/errors"
	"github.com/c360/agroflow/pkg/pubsub"
)

// Statistics is a pure aggregate over current registry state, computed on
// demand rather than cached.
type Statistics struct {
	Total             int     `json:"total"`
	Active            int     `json:"active"`
	Error             int     `json:"error"`
	Maintenance       int     `json:"maintenance"`
	Idle              int     `json:"idle"`
	TotalActions      int64   `json:"total_actions"`
	SuccessfulActions int64   `json:"successful_actions"`
	ErrorCount        int64   `json:"error_count"`
	SuccessRate       float64 `json:"success_rate"`
}

// Snapshot is the state handed to registry subscribers after every
// state-changing operation.
type Snapshot struct {
	Actuators  []Actuator `json:"actuators"`
	Statistics Statistics `json:"statistics"`
}

// Registry stores actuator definitions and exposes lookup, listing, and
// status mutation. Reads return deep copies; all writes go through the
// registry's mutation methods.
type Registry struct {
	mu        sync.RWMutex
	actuators map[string]*Actuator
	order     []string // insertion order for List

	broker *pubsub.Broker[Snapshot]
	logger *slog.Logger
}

// NewRegistry creates an empty actuator registry.
func NewRegistry() *Registry {
	return &Registry{
		actuators: make(map[string]*Actuator),
		broker:    pubsub.NewBroker[Snapshot](),
		logger:    slog.Default().With("component", "actuator-registry"),
	}
}

// Register creates a new actuator with a fresh id, idle status, zeroed
// performance counters, and configuration merged from the request and type
// defaults. Duplicate names and device ids are allowed.
func (r *Registry) Register(req RegisterRequest) (Actuator, error) {
	if !req.Type.Valid() {
		return Actuator{}, errors.WrapInvalid(
			fmt.Errorf("unknown actuator type %q", req.Type),
			"Registry", "Register", "validate type")
	}

	cfg := Configuration{
		MaxFlowRate:       req.MaxFlowRate,
		MaxPressure:       req.MaxPressure,
		SafetyLimits:      req.SafetyLimits,
		AutomationEnabled: true,
	}
	if cfg.MaxFlowRate == 0 {
		cfg.MaxFlowRate = DefaultMaxFlowRate
	}
	if cfg.MaxPressure == 0 {
		cfg.MaxPressure = DefaultMaxPressure
	}
	if cfg.SafetyLimits == nil {
		cfg.SafetyLimits = map[string]float64{}
	}

	now := time.Now()
	a := &Actuator{
		ID:            "actuator_" + uuid.NewString(),
		Name:          req.Name,
		Type:          req.Type,
		DeviceID:      req.DeviceID,
		Zone:          req.Zone,
		Location:      req.Location,
		Status:        StatusIdle,
		Configuration: cfg,
		CreatedAt:     now,
		LastUpdated:   now,
	}

	r.mu.Lock()
	r.actuators[a.ID] = a
	r.order = append(r.order, a.ID)
	r.mu.Unlock()

	r.logger.Info("Actuator registered",
		"actuator_id", a.ID, "type", a.Type, "name", a.Name, "zone", a.Zone)
	r.notify()
	return a.Clone(), nil
}

// Get returns a copy of the actuator, with ok=false when absent.
func (r *Registry) Get(id string) (Actuator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actuators[id]
	if !ok {
		return Actuator{}, false
	}
	return a.Clone(), true
}

// MustGet returns the actuator or ErrActuatorNotFound.
func (r *Registry) MustGet(id string) (Actuator, error) {
	if a, ok := r.Get(id); ok {
		return a, nil
	}
	return Actuator{}, errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrActuatorNotFound, id),
		"Registry", "MustGet", "lookup actuator")
}

// List returns copies of all actuators in insertion order.
func (r *Registry) List() []Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Actuator, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.actuators[id].Clone())
	}
	return out
}

// ListByDevice returns copies of the actuators owned by a device.
func (r *Registry) ListByDevice(deviceID string) []Actuator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Actuator
	for _, id := range r.order {
		if a := r.actuators[id]; a.DeviceID == deviceID {
			out = append(out, a.Clone())
		}
	}
	return out
}

// SetStatus changes an actuator's status. This is the recovery path for
// actuators stuck in error status after a failed action.
func (r *Registry) SetStatus(id string, status Status) error {
	if !status.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("unknown status %q", status),
			"Registry", "SetStatus", "validate status")
	}

	r.mu.Lock()
	a, ok := r.actuators[id]
	if !ok {
		r.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrActuatorNotFound, id),
			"Registry", "SetStatus", "lookup actuator")
	}
	a.Status = status
	if status != StatusActive {
		a.CurrentAction = nil
	}
	a.LastUpdated = time.Now()
	r.mu.Unlock()

	r.logger.Info("Actuator status changed", "actuator_id", id, "status", status)
	r.notify()
	return nil
}

// UpdateConfig applies a partial configuration change in place.
func (r *Registry) UpdateConfig(id string, update ConfigUpdate) error {
	r.mu.Lock()
	a, ok := r.actuators[id]
	if !ok {
		r.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrActuatorNotFound, id),
			"Registry", "UpdateConfig", "lookup actuator")
	}
	if update.MaxFlowRate != nil {
		a.Configuration.MaxFlowRate = *update.MaxFlowRate
	}
	if update.MaxPressure != nil {
		a.Configuration.MaxPressure = *update.MaxPressure
	}
	if update.SafetyLimits != nil {
		limits := make(map[string]float64, len(update.SafetyLimits))
		for k, v := range update.SafetyLimits {
			limits[k] = v
		}
		a.Configuration.SafetyLimits = limits
	}
	if update.AutomationEnabled != nil {
		a.Configuration.AutomationEnabled = *update.AutomationEnabled
	}
	a.LastUpdated = time.Now()
	r.mu.Unlock()

	r.notify()
	return nil
}

// BeginAction marks an actuator active with the given in-flight record.
// Reserved for the action queue's worker; status transitions during
// execution are driven solely by the queue.
func (r *Registry) BeginAction(id string, rec ActionRecord) error {
	r.mu.Lock()
	a, ok := r.actuators[id]
	if !ok {
		r.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrActuatorNotFound, id),
			"Registry", "BeginAction", "lookup actuator")
	}
	clone := rec.Clone()
	a.Status = StatusActive
	a.CurrentAction = &clone
	a.LastUpdated = time.Now()
	r.mu.Unlock()

	r.notify()
	return nil
}

// SettleAction records a terminal action outcome. On success the actuator
// returns to idle with the record as its last action; on failure it enters
// error status until an explicit SetStatus call recovers it. Performance
// counters always satisfy total == successful + errors after settling.
func (r *Registry) SettleAction(id string, rec ActionRecord, success bool) error {
	r.mu.Lock()
	a, ok := r.actuators[id]
	if !ok {
		r.mu.Unlock()
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrActuatorNotFound, id),
			"Registry", "SettleAction", "lookup actuator")
	}
	clone := rec.Clone()
	a.CurrentAction = nil
	a.Performance.TotalActions++
	if success {
		a.Status = StatusIdle
		a.LastAction = &clone
		a.Performance.SuccessfulActions++
	} else {
		a.Status = StatusError
		a.Performance.ErrorCount++
	}
	a.LastUpdated = time.Now()
	r.mu.Unlock()

	r.notify()
	return nil
}

// Statistics computes the aggregate over all actuators.
func (r *Registry) Statistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statisticsLocked()
}

func (r *Registry) statisticsLocked() Statistics {
	stats := Statistics{Total: len(r.actuators)}
	for _, a := range r.actuators {
		switch a.Status {
		case StatusActive:
			stats.Active++
		case StatusError:
			stats.Error++
		case StatusMaintenance:
			stats.Maintenance++
		}
		stats.TotalActions += a.Performance.TotalActions
		stats.SuccessfulActions += a.Performance.SuccessfulActions
		stats.ErrorCount += a.Performance.ErrorCount
	}
	stats.Idle = stats.Total - stats.Active - stats.Error - stats.Maintenance
	if stats.TotalActions > 0 {
		stats.SuccessRate = float64(stats.SuccessfulActions) / float64(stats.TotalActions) * 100
	}
	return stats
}

// Subscribe registers a callback invoked synchronously with a full snapshot
// after every state-changing operation. The returned unsubscribe function is
// idempotent.
func (r *Registry) Subscribe(fn func(Snapshot)) func() {
	return r.broker.Subscribe(fn)
}

func (r *Registry) notify() {
	r.mu.RLock()
	snap := Snapshot{
		Actuators:  make([]Actuator, 0, len(r.order)),
		Statistics: r.statisticsLocked(),
	}
	for _, id := range r.order {
		snap.Actuators = append(snap.Actuators, r.actuators[id].Clone())
	}
	r.mu.RUnlock()

	r.broker.Publish(snap)
}
