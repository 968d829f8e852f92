package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/automation"
	"github.com/c360/agroflow/component"
	"github.com/c360/agroflow/device"
	"github.com/c360/agroflow/errors"
)

func (g *Gateway) handleListActuators(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.List())
}

func (g *Gateway) handleRegisterActuator(w http.ResponseWriter, r *http.Request) {
	var req actuator.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := g.registry.Register(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (g *Gateway) handleActuatorStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.queue.Statistics())
}

func (g *Gateway) handleGetActuator(w http.ResponseWriter, r *http.Request) {
	a, err := g.registry.MustGet(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type actionRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

func (g *Gateway) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := g.queue.Submit(r.PathValue("id"), req.Action, req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	// 202: the record is pending, execution is asynchronous.
	writeJSON(w, http.StatusAccepted, rec)
}

type statusRequest struct {
	Status actuator.Status `json:"status"`
}

func (g *Gateway) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := g.registry.SetStatus(r.PathValue("id"), req.Status); err != nil {
		writeError(w, err)
		return
	}
	a, _ := g.registry.Get(r.PathValue("id"))
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req actuator.ConfigUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	if err := g.registry.UpdateConfig(r.PathValue("id"), req); err != nil {
		writeError(w, err)
		return
	}
	a, _ := g.registry.Get(r.PathValue("id"))
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.queue.History(limitParam(r, 50)))
}

func (g *Gateway) handleListRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.engine.Rules())
}

func (g *Gateway) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var spec automation.RuleSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	rule, err := g.engine.CreateRule(spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (g *Gateway) handleRuleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.engine.Statistics())
}

func (g *Gateway) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.engine.History(limitParam(r, 50)))
}

func (g *Gateway) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := g.engine.Rule(r.PathValue("id"))
	if !ok {
		writeError(w, errors.WrapInvalid(errors.ErrRuleNotFound, "Gateway", "handleGetRule", "lookup rule"))
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (g *Gateway) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var spec automation.RuleSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	rule, err := g.engine.UpdateRule(r.PathValue("id"), spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (g *Gateway) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := g.engine.Toggle(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (g *Gateway) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := g.engine.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addDeviceRequest struct {
	Name string      `json:"name"`
	Type device.Type `json:"type"`
	Zone string      `json:"zone"`
}

func (g *Gateway) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.source.Devices())
}

func (g *Gateway) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var req addDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := g.source.AddDevice(req.Name, req.Type, req.Zone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (g *Gateway) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.alerts.Recent(limitParam(r, 50)))
}

type healthResponse struct {
	Healthy    bool                              `json:"healthy"`
	Timestamp  time.Time                         `json:"timestamp"`
	Components map[string]component.HealthStatus `json:"components,omitempty"`
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Healthy:    true,
		Timestamp:  time.Now(),
		Components: make(map[string]component.HealthStatus),
	}
	for _, c := range g.checks {
		h := c.Health()
		resp.Components[c.Meta().Name] = h
		if !h.Healthy {
			resp.Healthy = false
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP status codes: absent ids are
// 404, validation failures 400, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, errors.ErrQueueFull):
		status = http.StatusTooManyRequests
	case errors.IsInvalid(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
