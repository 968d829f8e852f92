// Package gateway exposes the read/command API consumed by the dashboard:
// REST endpoints over the registry, queue, and engine, a WebSocket stream of
// state snapshots, Prometheus exposition, and component health.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360/agroflow/actionqueue"
	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/automation"
	"github.com/c360/agroflow/component"
	"github.com/c360/agroflow/device"
	"github.com/c360/agroflow/errors"
	"github.com/c360/agroflow/metric"
)

// Config holds gateway settings
type Config struct {
	Addr string
}

// Gateway serves the HTTP and WebSocket API.
type Gateway struct {
	config   Config
	registry *actuator.Registry
	queue    *actionqueue.Queue
	engine   *automation.Engine
	source   *device.Source // optional
	alerts   *alert.MemorySink
	metrics  *metric.Registry // optional

	hub    *hub
	server *http.Server
	logger *slog.Logger

	mu        sync.Mutex
	state     component.State
	startTime time.Time
	lastError string
	checks    []component.LifecycleComponent

	unsubQueue  func()
	unsubEngine func()
}

// New creates a gateway over the given core components. The alert sink and
// metrics registry may be nil; their endpoints are omitted.
func New(cfg Config, registry *actuator.Registry, queue *actionqueue.Queue, engine *automation.Engine, opts ...Option) *Gateway {
	g := &Gateway{
		config:   cfg,
		registry: registry,
		queue:    queue,
		engine:   engine,
		logger:   slog.Default().With("component", "gateway"),
		state:    component.StateCreated,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Option configures optional gateway collaborators.
type Option func(*Gateway)

// WithDeviceSource exposes device listing and registration endpoints.
func WithDeviceSource(s *device.Source) Option {
	return func(g *Gateway) { g.source = s }
}

// WithAlertSink exposes the recent-alerts endpoint backed by sink.
func WithAlertSink(sink *alert.MemorySink) Option {
	return func(g *Gateway) { g.alerts = sink }
}

// WithMetrics exposes /metrics from the registry.
func WithMetrics(reg *metric.Registry) Option {
	return func(g *Gateway) { g.metrics = reg }
}

// WithHealthChecks adds components reported by /healthz.
func WithHealthChecks(components ...component.LifecycleComponent) Option {
	return func(g *Gateway) { g.checks = append(g.checks, components...) }
}

// Meta implements component.LifecycleComponent.
func (g *Gateway) Meta() component.Metadata {
	return component.Metadata{
		Name:        "gateway",
		Type:        "output",
		Description: "HTTP and WebSocket API",
		Version:     "1.0.0",
	}
}

// Health implements component.LifecycleComponent.
func (g *Gateway) Health() component.HealthStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := component.HealthStatus{
		Healthy:   g.state == component.StateStarted,
		LastCheck: time.Now(),
		LastError: g.lastError,
	}
	if !g.startTime.IsZero() {
		h.Uptime = time.Since(g.startTime)
	}
	return h
}

// Initialize builds the router and wires snapshot streaming.
func (g *Gateway) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != component.StateCreated {
		return errors.WrapInvalid(
			fmt.Errorf("cannot initialize from state %s", g.state),
			"Gateway", "Initialize", "check state")
	}
	if g.registry == nil || g.queue == nil || g.engine == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Gateway", "Initialize", "require registry, queue, and engine")
	}

	g.hub = newHub(g.logger)
	g.unsubQueue = g.queue.Subscribe(func(s actionqueue.Snapshot) {
		g.hub.broadcast("actuators", s)
	})
	g.unsubEngine = g.engine.Subscribe(func(s automation.Snapshot) {
		g.hub.broadcast("automation", s)
	})

	g.server = &http.Server{
		Addr:              g.config.Addr,
		Handler:           g.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.state = component.StateInitialized
	return nil
}

// Start begins serving. Binding errors surface asynchronously via Health.
func (g *Gateway) Start(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case component.StateStarted:
		return errors.ErrAlreadyStarted
	case component.StateInitialized:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("cannot start from state %s", g.state),
			"Gateway", "Start", "check state")
	}

	g.startTime = time.Now()
	g.state = component.StateStarted

	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.mu.Lock()
			g.state = component.StateFailed
			g.lastError = err.Error()
			g.mu.Unlock()
			g.logger.Error("HTTP server failed", "error", err)
		}
	}()

	g.logger.Info("Gateway started", "addr", g.config.Addr)
	return nil
}

// Stop drains connections gracefully within timeout.
func (g *Gateway) Stop(timeout time.Duration) error {
	g.mu.Lock()
	if g.state != component.StateStarted && g.state != component.StateFailed {
		g.mu.Unlock()
		return errors.ErrNotStarted
	}
	server := g.server
	g.mu.Unlock()

	if g.unsubQueue != nil {
		g.unsubQueue()
	}
	if g.unsubEngine != nil {
		g.unsubEngine()
	}
	g.hub.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := server.Shutdown(ctx)

	g.mu.Lock()
	g.state = component.StateStopped
	g.mu.Unlock()

	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown server")
	}
	g.logger.Info("Gateway stopped")
	return nil
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/actuators", g.handleListActuators)
	mux.HandleFunc("POST /api/actuators", g.handleRegisterActuator)
	mux.HandleFunc("GET /api/actuators/stats", g.handleActuatorStats)
	mux.HandleFunc("GET /api/actuators/{id}", g.handleGetActuator)
	mux.HandleFunc("POST /api/actuators/{id}/actions", g.handleSubmitAction)
	mux.HandleFunc("POST /api/actuators/{id}/status", g.handleSetStatus)
	mux.HandleFunc("POST /api/actuators/{id}/config", g.handleUpdateConfig)
	mux.HandleFunc("GET /api/actions/history", g.handleActionHistory)

	mux.HandleFunc("GET /api/rules", g.handleListRules)
	mux.HandleFunc("POST /api/rules", g.handleCreateRule)
	mux.HandleFunc("GET /api/rules/stats", g.handleRuleStats)
	mux.HandleFunc("GET /api/rules/history", g.handleExecutionHistory)
	mux.HandleFunc("GET /api/rules/{id}", g.handleGetRule)
	mux.HandleFunc("PUT /api/rules/{id}", g.handleUpdateRule)
	mux.HandleFunc("POST /api/rules/{id}/toggle", g.handleToggleRule)
	mux.HandleFunc("DELETE /api/rules/{id}", g.handleDeleteRule)

	if g.source != nil {
		mux.HandleFunc("GET /api/devices", g.handleListDevices)
		mux.HandleFunc("POST /api/devices", g.handleAddDevice)
	}
	if g.alerts != nil {
		mux.HandleFunc("GET /api/alerts", g.handleRecentAlerts)
	}
	if g.metrics != nil {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", g.handleHealthz)
	mux.HandleFunc("GET /ws", g.hub.handleWS)

	return mux
}
