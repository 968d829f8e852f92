package actuator

import (
	"fmt"

	"github.com/c360/agroflow/errors"
)

// ActionParams is the closed set of per-type action parameter records.
// Decoding the wire-level string-keyed map into one of these at validation
// time catches invalid parameter combinations before simulated execution.
type ActionParams interface {
	isActionParams()
}

// IrrigationParams are parameters for irrigation valve actions.
type IrrigationParams struct {
	FlowRate float64 // L/min
	Pressure float64 // bar
	Duration float64 // minutes
}

// FertilizerParams are parameters for fertilizer dispenser actions.
type FertilizerParams struct {
	Volume          float64 // L
	ApplicationRate float64 // L/ha
	FertilizerType  string
}

// SprayerParams are parameters for pest sprayer actions.
type SprayerParams struct {
	CoverageArea float64 // m²
	SprayRate    float64 // L/min
	ChemicalType string
}

// VentParams are parameters for greenhouse vent actions.
type VentParams struct {
	OpeningPercentage float64
	Angle             float64 // degrees
	Duration          float64 // minutes
}

// LightParams are parameters for growth light actions.
type LightParams struct {
	Intensity float64 // percent
	Spectrum  string
	Duration  float64 // minutes
}

// TillerParams are parameters for soil tiller actions.
type TillerParams struct {
	TillingDepth float64 // cm
	Speed        float64 // km/h
	Pattern      string
}

func (IrrigationParams) isActionParams() {}
func (FertilizerParams) isActionParams() {}
func (SprayerParams) isActionParams()    {}
func (VentParams) isActionParams()       {}
func (LightParams) isActionParams()      {}
func (TillerParams) isActionParams()     {}

// Parameter defaults matching observed field equipment behavior
const (
	defaultFlowRate        = 50
	defaultPressure        = 30
	defaultVolume          = 10
	defaultApplicationRate = 5
	defaultFertilizerType  = "NPK"
	defaultCoverageArea    = 100
	defaultSprayRate       = 2
	defaultChemicalType    = "Organic"
	defaultOpeningPct      = 50
	defaultIntensity       = 80
	defaultSpectrum        = "Full Spectrum"
	defaultTillingDepth    = 15
	defaultTillerSpeed     = 5
	defaultTillerPattern   = "Linear"
)

// DecodeParams converts a wire-level parameter map into the typed parameter
// record for the actuator type, applying defaults for absent fields.
// String values (for example unresolved placeholders) fall back to defaults
// rather than failing; negative numeric values are rejected.
func DecodeParams(t Type, raw map[string]any) (ActionParams, error) {
	d := decoder{raw: raw}

	var params ActionParams
	switch t {
	case TypeIrrigationValve:
		params = IrrigationParams{
			FlowRate: d.num("flow_rate", defaultFlowRate),
			Pressure: d.num("pressure", defaultPressure),
			Duration: d.num("duration", 0),
		}
	case TypeFertilizerDispenser:
		params = FertilizerParams{
			Volume:          d.num("volume", defaultVolume),
			ApplicationRate: d.num("application_rate", defaultApplicationRate),
			FertilizerType:  d.str("type", defaultFertilizerType),
		}
	case TypePestSprayer:
		params = SprayerParams{
			CoverageArea: d.num("coverage_area", defaultCoverageArea),
			SprayRate:    d.num("spray_rate", defaultSprayRate),
			ChemicalType: d.str("chemical_type", defaultChemicalType),
		}
	case TypeGreenhouseVent:
		params = VentParams{
			OpeningPercentage: d.num("opening_percentage", defaultOpeningPct),
			Angle:             d.num("angle", 0),
			Duration:          d.num("duration", 0),
		}
	case TypeGrowthLight:
		params = LightParams{
			Intensity: d.num("intensity", defaultIntensity),
			Spectrum:  d.str("spectrum", defaultSpectrum),
			Duration:  d.num("duration", 0),
		}
	case TypeSoilTiller:
		params = TillerParams{
			TillingDepth: d.num("tilling_depth", defaultTillingDepth),
			Speed:        d.num("speed", defaultTillerSpeed),
			Pattern:      d.str("pattern", defaultTillerPattern),
		}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unknown actuator type %q", t),
			"actuator", "DecodeParams", "resolve type")
	}

	if d.err != nil {
		return nil, errors.WrapInvalid(d.err, "actuator", "DecodeParams", "validate parameters")
	}
	return params, nil
}

// decoder accumulates the first validation error while reading fields
type decoder struct {
	raw map[string]any
	err error
}

func (d *decoder) num(key string, def float64) float64 {
	v, ok := d.raw[key]
	if !ok {
		return def
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		// Non-numeric (e.g. an unresolved placeholder string) passes
		// through to the default rather than failing validation.
		return def
	}

	if f < 0 && d.err == nil {
		d.err = fmt.Errorf("parameter %q must not be negative, got %v", key, f)
	}
	return f
}

func (d *decoder) str(key, def string) string {
	if v, ok := d.raw[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
