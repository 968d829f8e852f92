package actionqueue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/errors"
)

func fastConfig() Config {
	return Config{
		MinLatency:      time.Millisecond,
		MaxLatency:      3 * time.Millisecond,
		QueueCapacity:   64,
		HistoryCapacity: 1000,
	}
}

func newTestQueue(t *testing.T, cfg Config, sink alert.Sink) (*Queue, *actuator.Registry) {
	t.Helper()

	reg := actuator.NewRegistry()
	q := NewQueue(reg, sink, cfg, nil)
	require.NoError(t, q.Initialize())
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() { _ = q.Stop(time.Second) })
	return q, reg
}

func registerValve(t *testing.T, reg *actuator.Registry) actuator.Actuator {
	t.Helper()
	a, err := reg.Register(actuator.RegisterRequest{
		Name:     "North Field Valve",
		Type:     actuator.TypeIrrigationValve,
		DeviceID: "device_north_probe",
		Zone:     "north",
	})
	require.NoError(t, err)
	return a
}

func waitTerminal(t *testing.T, q *Queue, actionID string) actuator.ActionRecord {
	t.Helper()

	var rec actuator.ActionRecord
	require.Eventually(t, func() bool {
		for _, r := range q.History(-1) {
			if r.ID == actionID && r.Status.Terminal() {
				rec = r
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "action %s never settled", actionID)
	return rec
}

func TestSubmitValidationFastFail(t *testing.T) {
	q, reg := newTestQueue(t, fastConfig(), nil)
	valve := registerValve(t, reg)

	tests := []struct {
		name       string
		actuatorID string
		action     string
		params     map[string]any
		check      func(error) bool
	}{
		{"unknown actuator", "actuator_missing", "open", nil, errors.IsNotFound},
		{"unsupported action", valve.ID, "dispense", nil,
			func(err error) bool { return errors.Is(err, errors.ErrUnsupportedAction) }},
		{"negative parameter", valve.ID, "open", map[string]any{"flow_rate": -5.0}, errors.IsInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Submit(tt.actuatorID, tt.action, tt.params)
			require.Error(t, err)
			assert.True(t, tt.check(err))
		})
	}

	// Fast-fail must leave no trace: no records, no counter movement.
	assert.Empty(t, q.History(-1))
	got, _ := reg.Get(valve.ID)
	assert.Equal(t, int64(0), got.Performance.TotalActions)
}

func TestSubmitDisabledActuator(t *testing.T) {
	q, reg := newTestQueue(t, fastConfig(), nil)
	valve := registerValve(t, reg)
	require.NoError(t, reg.SetStatus(valve.ID, actuator.StatusDisabled))

	_, err := q.Submit(valve.ID, "open", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrActuatorDisabled))

	got, _ := reg.Get(valve.ID)
	assert.Equal(t, actuator.Performance{}, got.Performance)
}

func TestSubmitBeforeStart(t *testing.T) {
	reg := actuator.NewRegistry()
	q := NewQueue(reg, nil, fastConfig(), nil)
	require.NoError(t, q.Initialize())

	_, err := q.Submit("actuator_x", "open", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotStarted))
}

func TestExecuteSuccess(t *testing.T) {
	sink := alert.NewMemorySink(16)
	q, reg := newTestQueue(t, fastConfig(), sink)
	valve := registerValve(t, reg)

	pending, err := q.Submit(valve.ID, "open", map[string]any{"flow_rate": 50.0})
	require.NoError(t, err)
	assert.Equal(t, actuator.ActionPending, pending.Status)

	rec := waitTerminal(t, q, pending.ID)
	assert.Equal(t, actuator.ActionCompleted, rec.Status)
	assert.Equal(t, 50.0, rec.Result["flow_rate"])
	assert.Equal(t, "Irrigation valve opened", rec.Result["message"])
	assert.Empty(t, rec.Error)
	assert.False(t, rec.StartedAt.IsZero())
	assert.False(t, rec.CompletedAt.IsZero())

	got, _ := reg.Get(valve.ID)
	assert.Equal(t, actuator.StatusIdle, got.Status)
	assert.Nil(t, got.CurrentAction)
	require.NotNil(t, got.LastAction)
	assert.Equal(t, pending.ID, got.LastAction.ID)
	assert.Equal(t, int64(1), got.Performance.TotalActions)
	assert.Equal(t, int64(1), got.Performance.SuccessfulActions)
	assert.Equal(t, int64(0), got.Performance.ErrorCount)

	events := sink.Recent(-1)
	require.Len(t, events, 1)
	assert.Equal(t, alert.TypeActionExecuted, events[0].Type)
	assert.Equal(t, alert.SeverityMedium, events[0].Severity)
	assert.Equal(t, "device_north_probe", events[0].DeviceID)
	assert.Equal(t, "North Field Valve", events[0].Data["device_name"])
}

func TestSafetyLimitFailure(t *testing.T) {
	cfg := fastConfig()
	cfg.EnforceSafetyLimits = true
	sink := alert.NewMemorySink(16)
	q, reg := newTestQueue(t, cfg, sink)
	valve := registerValve(t, reg) // MaxFlowRate defaults to 100

	pending, err := q.Submit(valve.ID, "open", map[string]any{"flow_rate": 150.0})
	require.NoError(t, err, "safety limits fail at execution, not submission")

	rec := waitTerminal(t, q, pending.ID)
	assert.Equal(t, actuator.ActionFailed, rec.Status)
	assert.Contains(t, rec.Error, "safety limit")
	assert.Nil(t, rec.Result)

	got, _ := reg.Get(valve.ID)
	assert.Equal(t, actuator.StatusError, got.Status)
	assert.Equal(t, int64(1), got.Performance.TotalActions)
	assert.Equal(t, int64(0), got.Performance.SuccessfulActions)
	assert.Equal(t, int64(1), got.Performance.ErrorCount)

	events := sink.Recent(-1)
	require.Len(t, events, 1)
	assert.Equal(t, alert.TypeActuatorError, events[0].Type)
	assert.Equal(t, alert.SeverityHigh, events[0].Severity)
	assert.Equal(t, "device_north_probe", events[0].DeviceID)
	assert.Equal(t, "North Field Valve", events[0].Data["device_name"])

	// Recovery requires an explicit status reset.
	require.NoError(t, reg.SetStatus(valve.ID, actuator.StatusIdle))
	got, _ = reg.Get(valve.ID)
	assert.Equal(t, actuator.StatusIdle, got.Status)
}

func TestSerializedExecution(t *testing.T) {
	q, reg := newTestQueue(t, fastConfig(), nil)
	valve := registerValve(t, reg)
	light, err := reg.Register(actuator.RegisterRequest{
		Name: "Greenhouse Light", Type: actuator.TypeGrowthLight,
	})
	require.NoError(t, err)

	const n = 6
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		target, action := valve.ID, "open"
		if i%2 == 1 {
			target, action = light.ID, "turn_on"
		}
		rec, err := q.Submit(target, action, nil)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	records := make([]actuator.ActionRecord, 0, n)
	for _, id := range ids {
		records = append(records, waitTerminal(t, q, id))
	}

	// One worker system-wide: execution windows never overlap.
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].StartedAt.Before(records[i-1].CompletedAt),
			"actions %s and %s overlapped", records[i-1].ID, records[i].ID)
	}

	stats := q.Statistics()
	assert.Equal(t, int64(n), stats.Submitted)
	assert.Equal(t, int64(n), stats.Completed)
	assert.Equal(t, stats.SuccessfulActions+stats.ErrorCount, stats.TotalActions)
}

func TestHistoryBound(t *testing.T) {
	cfg := fastConfig()
	cfg.HistoryCapacity = 5
	q, reg := newTestQueue(t, cfg, nil)
	valve := registerValve(t, reg)

	var lastID string
	for i := 0; i < 8; i++ {
		rec, err := q.Submit(valve.ID, "close", nil)
		require.NoError(t, err)
		lastID = rec.ID
	}
	waitTerminal(t, q, lastID)

	all := q.History(100)
	assert.Len(t, all, 5)
	assert.Equal(t, lastID, all[0].ID, "history is most-recent-first")
	assert.Len(t, q.History(2), 2)
}

func TestQueueFull(t *testing.T) {
	cfg := fastConfig()
	cfg.QueueCapacity = 1
	cfg.MinLatency = 200 * time.Millisecond
	cfg.MaxLatency = 300 * time.Millisecond
	q, reg := newTestQueue(t, cfg, nil)
	valve := registerValve(t, reg)

	_, err := q.Submit(valve.ID, "open", nil)
	require.NoError(t, err)
	// Give the worker time to take the first task off the channel.
	time.Sleep(50 * time.Millisecond)
	_, err = q.Submit(valve.ID, "open", nil)
	require.NoError(t, err)

	_, err = q.Submit(valve.ID, "open", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrQueueFull))
}

func TestSubscribeSnapshots(t *testing.T) {
	q, reg := newTestQueue(t, fastConfig(), nil)
	valve := registerValve(t, reg)

	type received struct {
		snapshots []Snapshot
	}
	got := &received{}
	var mu sync.Mutex
	unsubscribe := q.Subscribe(func(s Snapshot) {
		mu.Lock()
		got.snapshots = append(got.snapshots, s)
		mu.Unlock()
	})

	rec, err := q.Submit(valve.ID, "adjust_flow", map[string]any{"flow_rate": 25.0})
	require.NoError(t, err)
	waitTerminal(t, q, rec.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(got.snapshots) == 0 {
			return false
		}
		last := got.snapshots[len(got.snapshots)-1]
		return len(last.RecentHistory) == 1 && last.Statistics.Completed == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	last := got.snapshots[len(got.snapshots)-1]
	mu.Unlock()
	require.Len(t, last.Actuators, 1)
	assert.Equal(t, valve.ID, last.Actuators[0].ID)
	assert.Equal(t, rec.ID, last.RecentHistory[0].ID)

	unsubscribe()
	unsubscribe() // idempotent
	before := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got.snapshots)
	}()
	rec2, err := q.Submit(valve.ID, "close", nil)
	require.NoError(t, err)
	waitTerminal(t, q, rec2.ID)
	mu.Lock()
	after := len(got.snapshots)
	mu.Unlock()
	assert.Equal(t, before, after, "unsubscribed callback must not fire")
}

func TestLifecycleStateGuards(t *testing.T) {
	reg := actuator.NewRegistry()
	q := NewQueue(reg, nil, fastConfig(), nil)

	assert.Error(t, q.Start(context.Background()), "start before initialize")
	require.NoError(t, q.Initialize())
	assert.Error(t, q.Initialize(), "double initialize")

	require.NoError(t, q.Start(context.Background()))
	assert.ErrorIs(t, q.Start(context.Background()), errors.ErrAlreadyStarted)

	require.NoError(t, q.Stop(time.Second))
	assert.ErrorIs(t, q.Stop(time.Second), errors.ErrNotStarted)

	h := q.Health()
	assert.False(t, h.Healthy)
}

func TestStatisticsDelegation(t *testing.T) {
	q, reg := newTestQueue(t, fastConfig(), nil)
	registerValve(t, reg)
	registerValve(t, reg)

	stats := q.Statistics()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, len(reg.List()), stats.Total)
	assert.Equal(t, 0.0, stats.SuccessRate, "no division by zero on empty counters")
}
