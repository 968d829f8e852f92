// Package actuator provides the actuator data model and the in-memory
// registry that owns actuator definitions, status, and performance counters.
package actuator

import (
	"time"
)

// Type identifies a kind of controllable agricultural equipment.
// The set is closed: every type carries a fixed set of supported actions.
type Type string

// Supported actuator types
const (
	TypeIrrigationValve     Type = "irrigation_valve"
	TypeFertilizerDispenser Type = "fertilizer_dispenser"
	TypePestSprayer         Type = "pest_sprayer"
	TypeGreenhouseVent      Type = "greenhouse_vent"
	TypeGrowthLight         Type = "growth_light"
	TypeSoilTiller          Type = "soil_tiller"
)

// typeInfo describes an actuator type's display name and action set
type typeInfo struct {
	name    string
	actions []string
}

var actuatorTypes = map[Type]typeInfo{
	TypeIrrigationValve:     {name: "Irrigation Valve", actions: []string{"open", "close", "adjust_flow"}},
	TypeFertilizerDispenser: {name: "Fertilizer Dispenser", actions: []string{"dispense", "stop", "adjust_rate"}},
	TypePestSprayer:         {name: "Pest Control Sprayer", actions: []string{"spray", "stop", "adjust_coverage"}},
	TypeGreenhouseVent:      {name: "Greenhouse Ventilation", actions: []string{"open", "close", "adjust_angle"}},
	TypeGrowthLight:         {name: "Growth Light System", actions: []string{"turn_on", "turn_off", "adjust_intensity"}},
	TypeSoilTiller:          {name: "Soil Tiller", actions: []string{"start", "stop", "adjust_depth"}},
}

// Valid reports whether t is a known actuator type.
func (t Type) Valid() bool {
	_, ok := actuatorTypes[t]
	return ok
}

// DisplayName returns the human-readable name for the type.
func (t Type) DisplayName() string {
	if info, ok := actuatorTypes[t]; ok {
		return info.name
	}
	return string(t)
}

// Supports reports whether action is in the type's supported-action set.
func (t Type) Supports(action string) bool {
	info, ok := actuatorTypes[t]
	if !ok {
		return false
	}
	for _, a := range info.actions {
		if a == action {
			return true
		}
	}
	return false
}

// SupportedActions returns a copy of the type's action set.
func (t Type) SupportedActions() []string {
	info, ok := actuatorTypes[t]
	if !ok {
		return nil
	}
	out := make([]string, len(info.actions))
	copy(out, info.actions)
	return out
}

// Types returns all known actuator types.
func Types() []Type {
	return []Type{
		TypeIrrigationValve,
		TypeFertilizerDispenser,
		TypePestSprayer,
		TypeGreenhouseVent,
		TypeGrowthLight,
		TypeSoilTiller,
	}
}

// Status represents the operational state of an actuator.
// Exactly one status holds at any time.
type Status string

// Actuator statuses
const (
	StatusIdle        Status = "idle"
	StatusActive      Status = "active"
	StatusError       Status = "error"
	StatusMaintenance Status = "maintenance"
	StatusDisabled    Status = "disabled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusActive, StatusError, StatusMaintenance, StatusDisabled:
		return true
	}
	return false
}

// ActionStatus tracks an action record through its lifecycle:
// pending → executing → completed | failed. Terminal once completed or failed.
type ActionStatus string

// Action record statuses
const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Terminal reports whether the status is a final one.
func (s ActionStatus) Terminal() bool {
	return s == ActionCompleted || s == ActionFailed
}

// Location is a geographic position for an actuator or device.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ActionRecord captures one actuator command's lifecycle from submission to
// terminal outcome. Records are created and owned by the action queue;
// the registry holds references only.
type ActionRecord struct {
	ID          string         `json:"id"`
	ActuatorID  string         `json:"actuator_id"`
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Status      ActionStatus   `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`

	// Exactly one of Result and Error is set once the record is terminal.
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Clone returns a deep copy of the record.
func (r ActionRecord) Clone() ActionRecord {
	out := r
	out.Parameters = cloneMap(r.Parameters)
	out.Result = cloneMap(r.Result)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
