package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/agroflow/actionqueue"
	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/automation"
	"github.com/c360/agroflow/device"
)

type testEnv struct {
	gateway  *Gateway
	registry *actuator.Registry
	queue    *actionqueue.Queue
	engine   *automation.Engine
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := actuator.NewRegistry()
	sink := alert.NewMemorySink(64)
	queue := actionqueue.NewQueue(registry, sink, actionqueue.Config{
		MinLatency: time.Millisecond,
		MaxLatency: 3 * time.Millisecond,
	}, nil)
	require.NoError(t, queue.Initialize())
	require.NoError(t, queue.Start(context.Background()))
	t.Cleanup(func() { _ = queue.Stop(time.Second) })

	engine := automation.NewEngine(queue, sink, nil)
	source := device.NewSource(engine, sink, device.Config{})

	g := New(Config{Addr: ":0"}, registry, queue, engine,
		WithDeviceSource(source),
		WithAlertSink(sink),
		WithHealthChecks(queue))
	require.NoError(t, g.Initialize())

	server := httptest.NewServer(g.server.Handler)
	t.Cleanup(server.Close)

	return &testEnv{gateway: g, registry: registry, queue: queue, engine: engine, server: server}
}

func (env *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (env *testEnv) post(t *testing.T, path string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (env *testEnv) do(t *testing.T, method, path string) int {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestActuatorEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var created actuator.Actuator
	status := env.post(t, "/api/actuators", actuator.RegisterRequest{
		Name: "Valve", Type: actuator.TypeIrrigationValve, Zone: "north",
	}, &created)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, created.ID)

	var list []actuator.Actuator
	require.Equal(t, http.StatusOK, env.get(t, "/api/actuators", &list))
	require.Len(t, list, 1)

	var got actuator.Actuator
	require.Equal(t, http.StatusOK, env.get(t, "/api/actuators/"+created.ID, &got))
	assert.Equal(t, created.ID, got.ID)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/actuators/actuator_missing", nil))

	status = env.post(t, "/api/actuators", actuator.RegisterRequest{
		Name: "Bad", Type: "laser_weeder",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var stats actionqueue.Statistics
	require.Equal(t, http.StatusOK, env.get(t, "/api/actuators/stats", &stats))
	assert.Equal(t, 1, stats.Total)
}

func TestSubmitActionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	valve, err := env.registry.Register(actuator.RegisterRequest{
		Name: "Valve", Type: actuator.TypeIrrigationValve,
	})
	require.NoError(t, err)

	var rec actuator.ActionRecord
	status := env.post(t, "/api/actuators/"+valve.ID+"/actions", actionRequest{
		Action:     "open",
		Parameters: map[string]any{"flow_rate": 40.0},
	}, &rec)
	require.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, actuator.ActionPending, rec.Status)

	require.Eventually(t, func() bool {
		var history []actuator.ActionRecord
		env.get(t, "/api/actions/history", &history)
		return len(history) == 1 && history[0].Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	status = env.post(t, "/api/actuators/"+valve.ID+"/actions", actionRequest{Action: "dispense"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.post(t, "/api/actuators/actuator_missing/actions", actionRequest{Action: "open"}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatusAndConfigEndpoints(t *testing.T) {
	env := newTestEnv(t)
	valve, err := env.registry.Register(actuator.RegisterRequest{
		Name: "Valve", Type: actuator.TypeIrrigationValve,
	})
	require.NoError(t, err)

	var updated actuator.Actuator
	status := env.post(t, "/api/actuators/"+valve.ID+"/status",
		statusRequest{Status: actuator.StatusMaintenance}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, actuator.StatusMaintenance, updated.Status)

	flow := 80.0
	status = env.post(t, "/api/actuators/"+valve.ID+"/config",
		actuator.ConfigUpdate{MaxFlowRate: &flow}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 80.0, updated.Configuration.MaxFlowRate)

	status = env.post(t, "/api/actuators/"+valve.ID+"/status",
		statusRequest{Status: "hibernating"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRuleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	spec := automation.RuleSpec{
		Name:       "dry soil",
		Type:       automation.RuleThreshold,
		SensorType: "moisture",
		Condition:  &automation.Condition{Op: automation.OpLessThan, Threshold: 30},
		Actions:    []automation.RuleAction{{ActuatorID: "actuator_a", Action: "open"}},
	}

	var rule automation.Rule
	require.Equal(t, http.StatusCreated, env.post(t, "/api/rules", spec, &rule))
	assert.True(t, rule.Enabled)

	var rules []automation.Rule
	require.Equal(t, http.StatusOK, env.get(t, "/api/rules", &rules))
	require.Len(t, rules, 1)

	var toggled automation.Rule
	require.Equal(t, http.StatusOK,
		env.post(t, "/api/rules/"+rule.ID+"/toggle", nil, &toggled))
	assert.False(t, toggled.Enabled)

	spec.Name = "renamed"
	var updated automation.Rule
	req, err := http.NewRequest(http.MethodPut, env.server.URL+"/api/rules/"+rule.ID,
		bytes.NewReader(mustJSON(t, spec)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	resp.Body.Close()
	assert.Equal(t, "renamed", updated.Name)

	var stats automation.Statistics
	require.Equal(t, http.StatusOK, env.get(t, "/api/rules/stats", &stats))
	assert.Equal(t, 1, stats.Total)

	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/rules/"+rule.ID))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/rules/"+rule.ID))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/rules/"+rule.ID+"/toggle"))
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/rules/"+rule.ID, nil))
}

func TestDeviceAndAlertEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var d device.Device
	status := env.post(t, "/api/devices", addDeviceRequest{
		Name: "Probe", Type: device.TypeSoilSensor, Zone: "north",
	}, &d)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, d.ID)

	var devices []device.Device
	require.Equal(t, http.StatusOK, env.get(t, "/api/devices", &devices))
	assert.Len(t, devices, 1)

	status = env.post(t, "/api/devices", addDeviceRequest{Name: "Bad", Type: "drone"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var alerts []alert.Event
	require.Equal(t, http.StatusOK, env.get(t, "/api/alerts", &alerts))
	assert.Empty(t, alerts)
}

func TestHealthzEndpoint(t *testing.T) {
	env := newTestEnv(t)

	var resp healthResponse
	require.Equal(t, http.StatusOK, env.get(t, "/healthz", &resp))
	assert.True(t, resp.Healthy)
	assert.Contains(t, resp.Components, "action-queue")

	// A stopped component flips overall health.
	require.NoError(t, env.queue.Stop(time.Second))
	require.Equal(t, http.StatusServiceUnavailable, env.get(t, "/healthz", &resp))
	assert.False(t, resp.Healthy)
}

func TestWebSocketSnapshots(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.gateway.hub.clientCount() == 1
	}, time.Second, 5*time.Millisecond)

	// A registry change triggers an actuators frame.
	_, err = env.registry.Register(actuator.RegisterRequest{
		Name: "Valve", Type: actuator.TypeIrrigationValve,
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "actuators", msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	// A rule change triggers an automation frame.
	_, err = env.engine.CreateRule(automation.RuleSpec{
		Name:       "r",
		Type:       automation.RuleThreshold,
		SensorType: "moisture",
		Condition:  &automation.Condition{Op: automation.OpLessThan, Threshold: 30},
		Actions:    []automation.RuleAction{{ActuatorID: "actuator_a", Action: "open"}},
	})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "automation", msg.Type)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 50},
		{"limit=10", 10},
		{"limit=0", 0},
		{"limit=-3", 50},
		{"limit=abc", 50},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/actions/history?%s", tt.query), nil)
		assert.Equal(t, tt.want, limitParam(r, 50))
	}
}
