package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agroflow/errors"
)

func TestType_Supports(t *testing.T) {
	tests := []struct {
		typ      Type
		action   string
		expected bool
	}{
		{TypeIrrigationValve, "open", true},
		{TypeIrrigationValve, "adjust_flow", true},
		{TypeIrrigationValve, "dispense", false},
		{TypeFertilizerDispenser, "dispense", true},
		{TypePestSprayer, "spray", true},
		{TypeGreenhouseVent, "adjust_angle", true},
		{TypeGrowthLight, "turn_on", true},
		{TypeSoilTiller, "adjust_depth", true},
		{TypeSoilTiller, "open", false},
		{Type("unknown"), "open", false},
	}

	for _, test := range tests {
		t.Run(string(test.typ)+"/"+test.action, func(t *testing.T) {
			assert.Equal(t, test.expected, test.typ.Supports(test.action))
		})
	}
}

func TestDecodeParams_Defaults(t *testing.T) {
	params, err := DecodeParams(TypeIrrigationValve, nil)
	require.NoError(t, err)

	irrigation, ok := params.(IrrigationParams)
	require.True(t, ok)
	assert.Equal(t, float64(50), irrigation.FlowRate)
	assert.Equal(t, float64(30), irrigation.Pressure)
	assert.Zero(t, irrigation.Duration)
}

func TestDecodeParams_Overrides(t *testing.T) {
	params, err := DecodeParams(TypeFertilizerDispenser, map[string]any{
		"volume":           15.0,
		"application_rate": 8,
		"type":             "Phosphate",
	})
	require.NoError(t, err)

	fert, ok := params.(FertilizerParams)
	require.True(t, ok)
	assert.Equal(t, float64(15), fert.Volume)
	assert.Equal(t, float64(8), fert.ApplicationRate)
	assert.Equal(t, "Phosphate", fert.FertilizerType)
}

func TestDecodeParams_UnresolvedPlaceholderFallsBack(t *testing.T) {
	params, err := DecodeParams(TypeGrowthLight, map[string]any{
		"intensity": "${light}", // placeholder that never resolved
	})
	require.NoError(t, err)

	light, ok := params.(LightParams)
	require.True(t, ok)
	assert.Equal(t, float64(80), light.Intensity)
	assert.Equal(t, "Full Spectrum", light.Spectrum)
}

func TestDecodeParams_RejectsNegative(t *testing.T) {
	_, err := DecodeParams(TypeSoilTiller, map[string]any{"tilling_depth": -3.0})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeParams_UnknownType(t *testing.T) {
	_, err := DecodeParams(Type("mystery"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestDecodeParams_AllTypes(t *testing.T) {
	for _, typ := range Types() {
		t.Run(string(typ), func(t *testing.T) {
			params, err := DecodeParams(typ, map[string]any{})
			require.NoError(t, err)
			assert.NotNil(t, params)
		})
	}
}

func TestActionRecord_Clone(t *testing.T) {
	rec := ActionRecord{
		ID:         "action_1",
		Parameters: map[string]any{"flow_rate": 50.0},
		Result:     map[string]any{"message": "done"},
	}

	clone := rec.Clone()
	clone.Parameters["flow_rate"] = 99.0
	clone.Result["message"] = "tampered"

	assert.Equal(t, 50.0, rec.Parameters["flow_rate"])
	assert.Equal(t, "done", rec.Result["message"])
}

func TestActionStatus_Terminal(t *testing.T) {
	assert.False(t, ActionPending.Terminal())
	assert.False(t, ActionExecuting.Terminal())
	assert.True(t, ActionCompleted.Terminal())
	assert.True(t, ActionFailed.Terminal())
}
