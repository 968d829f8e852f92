package actuator

import (
	"time"
)

// Performance holds per-actuator action counters. Counters are monotonically
// non-decreasing and satisfy TotalActions == SuccessfulActions + ErrorCount
// after every settled action.
type Performance struct {
	TotalActions      int64     `json:"total_actions"`
	SuccessfulActions int64     `json:"successful_actions"`
	ErrorCount        int64     `json:"error_count"`
	LastMaintenance   time.Time `json:"last_maintenance,omitzero"`
}

// Configuration holds operator-tunable actuator settings. Safety limits are
// stored for every actuator but only enforced when the action queue is
// configured to do so.
type Configuration struct {
	MaxFlowRate       float64            `json:"max_flow_rate"`
	MaxPressure       float64            `json:"max_pressure"`
	SafetyLimits      map[string]float64 `json:"safety_limits,omitempty"`
	AutomationEnabled bool               `json:"automation_enabled"`
}

// Default configuration values applied at registration
const (
	DefaultMaxFlowRate = 100
	DefaultMaxPressure = 50
)

// Actuator is one controllable piece of equipment.
type Actuator struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Type     Type     `json:"type"`
	DeviceID string   `json:"device_id,omitempty"` // owning device, back-reference only
	Zone     string   `json:"zone,omitempty"`
	Location Location `json:"location"`

	Status Status `json:"status"`

	// CurrentAction is set iff Status == StatusActive.
	CurrentAction *ActionRecord `json:"current_action,omitempty"`
	LastAction    *ActionRecord `json:"last_action,omitempty"`

	Performance   Performance   `json:"performance"`
	Configuration Configuration `json:"configuration"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Clone returns a deep copy suitable for handing to external readers.
func (a Actuator) Clone() Actuator {
	out := a
	if a.CurrentAction != nil {
		rec := a.CurrentAction.Clone()
		out.CurrentAction = &rec
	}
	if a.LastAction != nil {
		rec := a.LastAction.Clone()
		out.LastAction = &rec
	}
	if a.Configuration.SafetyLimits != nil {
		limits := make(map[string]float64, len(a.Configuration.SafetyLimits))
		for k, v := range a.Configuration.SafetyLimits {
			limits[k] = v
		}
		out.Configuration.SafetyLimits = limits
	}
	return out
}

// RegisterRequest carries the caller-supplied fields for a new actuator.
type RegisterRequest struct {
	Name     string   `json:"name"`
	Type     Type     `json:"type"`
	DeviceID string   `json:"device_id,omitempty"`
	Zone     string   `json:"zone,omitempty"`
	Location Location `json:"location"`

	// Optional configuration overrides; zero values fall back to defaults.
	MaxFlowRate  float64            `json:"max_flow_rate,omitempty"`
	MaxPressure  float64            `json:"max_pressure,omitempty"`
	SafetyLimits map[string]float64 `json:"safety_limits,omitempty"`
}

// ConfigUpdate is a partial configuration change; nil fields are untouched.
type ConfigUpdate struct {
	MaxFlowRate       *float64           `json:"max_flow_rate,omitempty"`
	MaxPressure       *float64           `json:"max_pressure,omitempty"`
	SafetyLimits      map[string]float64 `json:"safety_limits,omitempty"`
	AutomationEnabled *bool              `json:"automation_enabled,omitempty"`
}
