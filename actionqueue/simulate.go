package actionqueue

import (
	"fmt"

	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/errors"
)

// simulate runs the type-specific handler and returns the result payload.
// The handler is selected by the typed parameter variant, which Submit
// already decoded, so the default branches here only fire for action strings
// admitted by the type's action set but missing a handler case.
func simulate(action string, params actuator.ActionParams) (map[string]any, error) {
	switch p := params.(type) {
	case actuator.IrrigationParams:
		return simulateIrrigation(action, p)
	case actuator.FertilizerParams:
		return simulateFertilizer(action, p)
	case actuator.SprayerParams:
		return simulateSprayer(action, p)
	case actuator.VentParams:
		return simulateVent(action, p)
	case actuator.LightParams:
		return simulateLight(action, p)
	case actuator.TillerParams:
		return simulateTiller(action, p)
	default:
		return nil, fmt.Errorf("%w: no handler for parameter type %T", errors.ErrActionFailed, params)
	}
}

func simulateIrrigation(action string, p actuator.IrrigationParams) (map[string]any, error) {
	switch action {
	case "open":
		return map[string]any{
			"flow_rate": p.FlowRate,
			"pressure":  p.Pressure,
			"message":   "Irrigation valve opened",
		}, nil
	case "close":
		return map[string]any{"message": "Irrigation valve closed"}, nil
	case "adjust_flow":
		return map[string]any{
			"flow_rate": p.FlowRate,
			"message":   fmt.Sprintf("Flow rate adjusted to %g L/min", p.FlowRate),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported irrigation action %q", errors.ErrActionFailed, action)
	}
}

func simulateFertilizer(action string, p actuator.FertilizerParams) (map[string]any, error) {
	switch action {
	case "dispense":
		return map[string]any{
			"volume":           p.Volume,
			"application_rate": p.ApplicationRate,
			"fertilizer_type":  p.FertilizerType,
			"message":          fmt.Sprintf("Dispensed %gL of %s fertilizer", p.Volume, p.FertilizerType),
		}, nil
	case "stop":
		return map[string]any{"message": "Fertilizer dispensing stopped"}, nil
	case "adjust_rate":
		return map[string]any{
			"application_rate": p.ApplicationRate,
			"message":          fmt.Sprintf("Application rate adjusted to %g L/ha", p.ApplicationRate),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported fertilizer action %q", errors.ErrActionFailed, action)
	}
}

func simulateSprayer(action string, p actuator.SprayerParams) (map[string]any, error) {
	switch action {
	case "spray":
		return map[string]any{
			"coverage_area": p.CoverageArea,
			"spray_rate":    p.SprayRate,
			"chemical_type": p.ChemicalType,
			"message":       fmt.Sprintf("Sprayed %gm² with %s", p.CoverageArea, p.ChemicalType),
		}, nil
	case "stop":
		return map[string]any{"message": "Spraying stopped"}, nil
	case "adjust_coverage":
		return map[string]any{
			"coverage_area": p.CoverageArea,
			"message":       fmt.Sprintf("Coverage area adjusted to %gm²", p.CoverageArea),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported pest control action %q", errors.ErrActionFailed, action)
	}
}

func simulateVent(action string, p actuator.VentParams) (map[string]any, error) {
	switch action {
	case "open":
		return map[string]any{
			"opening_percentage": p.OpeningPercentage,
			"message":            fmt.Sprintf("Greenhouse vents opened to %g%%", p.OpeningPercentage),
		}, nil
	case "close":
		return map[string]any{"message": "Greenhouse vents closed"}, nil
	case "adjust_angle":
		return map[string]any{
			"angle":   p.Angle,
			"message": fmt.Sprintf("Vent angle adjusted to %g°", p.Angle),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported greenhouse action %q", errors.ErrActionFailed, action)
	}
}

func simulateLight(action string, p actuator.LightParams) (map[string]any, error) {
	switch action {
	case "turn_on":
		return map[string]any{
			"intensity": p.Intensity,
			"spectrum":  p.Spectrum,
			"message":   fmt.Sprintf("Growth lights turned on at %g%% intensity", p.Intensity),
		}, nil
	case "turn_off":
		return map[string]any{"message": "Growth lights turned off"}, nil
	case "adjust_intensity":
		return map[string]any{
			"intensity": p.Intensity,
			"message":   fmt.Sprintf("Light intensity adjusted to %g%%", p.Intensity),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported lighting action %q", errors.ErrActionFailed, action)
	}
}

func simulateTiller(action string, p actuator.TillerParams) (map[string]any, error) {
	switch action {
	case "start":
		return map[string]any{
			"tilling_depth": p.TillingDepth,
			"speed":         p.Speed,
			"pattern":       p.Pattern,
			"message":       fmt.Sprintf("Soil tilling started at %gcm depth", p.TillingDepth),
		}, nil
	case "stop":
		return map[string]any{"message": "Soil tilling stopped"}, nil
	case "adjust_depth":
		return map[string]any{
			"tilling_depth": p.TillingDepth,
			"message":       fmt.Sprintf("Tilling depth adjusted to %gcm", p.TillingDepth),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported tilling action %q", errors.ErrActionFailed, action)
	}
}

// checkSafetyLimits rejects parameters exceeding the actuator's configured
// maxima. Flow and pressure maxima apply to irrigation parameters; the
// per-actuator SafetyLimits map applies to any matching raw parameter key.
func checkSafetyLimits(act actuator.Actuator, rec actuator.ActionRecord, params actuator.ActionParams) error {
	if p, ok := params.(actuator.IrrigationParams); ok {
		if p.FlowRate > act.Configuration.MaxFlowRate {
			return fmt.Errorf("%w: flow_rate %g exceeds maximum %g",
				errors.ErrSafetyLimit, p.FlowRate, act.Configuration.MaxFlowRate)
		}
		if p.Pressure > act.Configuration.MaxPressure {
			return fmt.Errorf("%w: pressure %g exceeds maximum %g",
				errors.ErrSafetyLimit, p.Pressure, act.Configuration.MaxPressure)
		}
	}

	for key, limit := range act.Configuration.SafetyLimits {
		raw, ok := rec.Parameters[key]
		if !ok {
			continue
		}
		var v float64
		switch n := raw.(type) {
		case float64:
			v = n
		case int:
			v = float64(n)
		default:
			continue
		}
		if v > limit {
			return fmt.Errorf("%w: %s %g exceeds limit %g", errors.ErrSafetyLimit, key, v, limit)
		}
	}
	return nil
}
