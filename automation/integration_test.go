package automation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agroflow/actionqueue"
	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/automation"
)

// Exercises the full reading-to-actuator path: rule match, placeholder
// substitution, queued execution, registry settle, and alert emission.
func TestReadingToActuatorPath(t *testing.T) {
	reg := actuator.NewRegistry()
	sink := alert.NewMemorySink(32)

	queue := actionqueue.NewQueue(reg, sink, actionqueue.Config{
		MinLatency: time.Millisecond,
		MaxLatency: 3 * time.Millisecond,
	}, nil)
	require.NoError(t, queue.Initialize())
	require.NoError(t, queue.Start(context.Background()))
	t.Cleanup(func() { _ = queue.Stop(time.Second) })

	engine := automation.NewEngine(queue, sink, nil)

	valve, err := reg.Register(actuator.RegisterRequest{
		Name:     "Field Valve",
		Type:     actuator.TypeIrrigationValve,
		DeviceID: "device_1",
		Zone:     "north",
	})
	require.NoError(t, err)

	rule, err := engine.CreateRule(automation.RuleSpec{
		Name:       "dry soil watering",
		Type:       automation.RuleThreshold,
		SensorType: "moisture",
		Condition:  &automation.Condition{Op: automation.OpLessThan, Threshold: 30},
		Actions: []automation.RuleAction{{
			ActuatorID: valve.ID,
			Action:     "adjust_flow",
			Parameters: map[string]any{"flow_rate": "${moisture}"},
		}},
	})
	require.NoError(t, err)

	engine.ProcessReading(context.Background(), "device_1", automation.Reading{
		Timestamp: time.Now(),
		Sensors:   map[string]automation.SensorValue{"moisture": {Value: 22, Unit: "%"}},
		Quality:   automation.QualityGood,
	})

	// The rule has settled synchronously; the queued action settles after
	// its simulated latency.
	gotRule, _ := engine.Rule(rule.ID)
	assert.Equal(t, int64(1), gotRule.SuccessCount)

	require.Eventually(t, func() bool {
		history := queue.History(1)
		return len(history) == 1 && history[0].Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	rec := queue.History(1)[0]
	assert.Equal(t, actuator.ActionCompleted, rec.Status)
	assert.Equal(t, 22.0, rec.Result["flow_rate"], "placeholder resolved to the sensor value")

	gotValve, _ := reg.Get(valve.ID)
	assert.Equal(t, actuator.StatusIdle, gotValve.Status)
	assert.Equal(t, int64(1), gotValve.Performance.SuccessfulActions)

	// One LOW alert for the rule, one MEDIUM for the settled action.
	events := sink.Recent(-1)
	require.Len(t, events, 2)
	types := map[string]alert.Severity{}
	for _, ev := range events {
		types[ev.Type] = ev.Severity
	}
	assert.Equal(t, alert.SeverityLow, types[alert.TypeAutomationExecuted])
	assert.Equal(t, alert.SeverityMedium, types[alert.TypeActionExecuted])
}
