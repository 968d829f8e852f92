// Package main implements the entry point for the AgroFlow service.
// AgroFlow is an agricultural automation core: a rule engine evaluating
// sensor readings, a serialized actuator action queue, and the registry and
// APIs around them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/agroflow/actionqueue"
	"github.com/c360/agroflow/actuator"
	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/automation"
	"github.com/c360/agroflow/component"
	"github.com/c360/agroflow/config"
	"github.com/c360/agroflow/device"
	"github.com/c360/agroflow/gateway"
	"github.com/c360/agroflow/metric"
	"github.com/c360/agroflow/natsclient"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "agroflow"
)

type cliConfig struct {
	configPath      string
	logLevel        string
	logFormat       string
	demo            bool
	showVersion     bool
	shutdownTimeout time.Duration
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cli := parseFlags()
	if cli.showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	setupLogger(cli.logLevel, cli.logFormat)
	slog.Info("Starting AgroFlow", "version", Version, "config_path", cli.configPath)

	cfg, err := config.Load(cli.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := metric.NewRegistry()
	recent := alert.NewMemorySink(256)
	sink, natsClient, err := buildAlertSink(ctx, cfg, recent)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(context.Background())
	}

	registry := actuator.NewRegistry()
	queue := actionqueue.NewQueue(registry, sink, actionqueue.Config{
		MinLatency:          cfg.Queue.MinLatency.Std(),
		MaxLatency:          cfg.Queue.MaxLatency.Std(),
		QueueCapacity:       cfg.Queue.QueueCapacity,
		HistoryCapacity:     cfg.Queue.HistoryCapacity,
		EnforceSafetyLimits: cfg.Queue.EnforceSafetyLimits,
	}, metrics)
	engine := automation.NewEngine(queue, sink, metrics,
		automation.WithHistoryCapacity(cfg.Automation.HistoryCapacity))
	source := device.NewSource(engine, sink, device.Config{
		PollInterval: cfg.Device.PollInterval.Std(),
	})

	gw := gateway.New(gateway.Config{Addr: cfg.Gateway.Addr}, registry, queue, engine,
		gateway.WithDeviceSource(source),
		gateway.WithAlertSink(recent),
		gateway.WithMetrics(metrics),
		gateway.WithHealthChecks(queue, source))

	components := []component.LifecycleComponent{queue, gw}
	if cfg.Device.Enabled {
		components = append(components, source)
	}

	if err := startAll(ctx, components); err != nil {
		stopAll(components, cli.shutdownTimeout)
		return err
	}

	if natsClient != nil {
		subscribeReadings(ctx, natsClient, engine)
	}

	if cli.demo {
		if err := seedDemo(registry, engine, source); err != nil {
			slog.Warn("Demo seed failed", "error", err)
		}
	}

	waitForSignal(ctx)
	slog.Info("Shutting down")
	cancel()
	stopAll(components, cli.shutdownTimeout)
	return nil
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}
	flag.StringVar(&cli.configPath, "config", "", "path to JSON config file")
	flag.StringVar(&cli.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&cli.logFormat, "log-format", "text", "log format: text or json")
	flag.BoolVar(&cli.demo, "demo", false, "seed demo actuators, devices, and rules")
	flag.BoolVar(&cli.showVersion, "version", false, "print version and exit")
	flag.DurationVar(&cli.shutdownTimeout, "shutdown-timeout", 10*time.Second, "per-component stop timeout")
	flag.Parse()
	return cli
}

func setupLogger(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildAlertSink composes the in-memory sink with NATS publishing when
// configured. A NATS connection failure at startup is not fatal; the client
// reconnects in the background.
func buildAlertSink(ctx context.Context, cfg *config.Config, recent *alert.MemorySink) (alert.Sink, *natsclient.Client, error) {
	if !cfg.NATS.Enabled {
		return recent, nil, nil
	}

	opts := natsclient.DefaultOptions()
	opts.Name = appName
	opts.MaxReconnects = cfg.NATS.MaxReconnects
	opts.ReconnectWait = cfg.NATS.ReconnectWait.Std()
	client := natsclient.NewClient(cfg.NATS.URL, opts)

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connCtx); err != nil {
		slog.Warn("NATS unavailable at startup, alerts buffer locally", "error", err)
	}

	return alert.NewMultiSink(recent, alert.NewNATSSink(client)), client, nil
}

// subscribeReadings feeds bus-published readings into the engine, alongside
// the local device source. External producers publish envelopes on
// readings.ingest. Subscription failure is not fatal; local polling still
// drives the engine.
func subscribeReadings(ctx context.Context, client *natsclient.Client, engine *automation.Engine) {
	type envelope struct {
		DeviceID string             `json:"device_id"`
		Reading  automation.Reading `json:"reading"`
	}
	err := client.Subscribe(ctx, "readings.ingest", func(ctx context.Context, data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Malformed reading on bus", "error", err)
			return
		}
		engine.ProcessReading(ctx, env.DeviceID, env.Reading)
	})
	if err != nil {
		slog.Warn("Reading subscription unavailable", "error", err)
	}
}

func startAll(ctx context.Context, components []component.LifecycleComponent) error {
	for _, c := range components {
		name := c.Meta().Name
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", name, err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", name, err)
		}
		slog.Info("Component started", "component", name)
	}
	return nil
}

// stopAll stops components in reverse start order.
func stopAll(components []component.LifecycleComponent, timeout time.Duration) {
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := c.Stop(timeout); err != nil {
			slog.Warn("Component stop failed", "component", c.Meta().Name, "error", err)
		}
	}
}

func waitForSignal(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Signal received", "signal", sig)
	case <-ctx.Done():
	}
}

// seedDemo registers a small working farm: two devices, three actuators, and
// rules exercising threshold, conditional, and schedule matching.
func seedDemo(registry *actuator.Registry, engine *automation.Engine, source *device.Source) error {
	probe, err := source.AddDevice("North Field Soil Probe", device.TypeSoilSensor, "north")
	if err != nil {
		return err
	}
	if _, err := source.AddDevice("Weather Station", device.TypeWeatherStation, "central"); err != nil {
		return err
	}

	valve, err := registry.Register(actuator.RegisterRequest{
		Name: "North Field Valve", Type: actuator.TypeIrrigationValve,
		DeviceID: probe.ID, Zone: "north",
	})
	if err != nil {
		return err
	}
	vent, err := registry.Register(actuator.RegisterRequest{
		Name: "Greenhouse Vent", Type: actuator.TypeGreenhouseVent, Zone: "greenhouse",
	})
	if err != nil {
		return err
	}
	light, err := registry.Register(actuator.RegisterRequest{
		Name: "Seedling Lights", Type: actuator.TypeGrowthLight, Zone: "greenhouse",
	})
	if err != nil {
		return err
	}

	if _, err := engine.CreateRule(automation.RuleSpec{
		Name:       "Irrigate dry soil",
		Type:       automation.RuleThreshold,
		SensorType: "moisture",
		Condition:  &automation.Condition{Op: automation.OpLessThan, Threshold: 30},
		Actions: []automation.RuleAction{{
			ActuatorID: valve.ID,
			Action:     "open",
			Parameters: map[string]any{"flow_rate": 50.0, "duration": 30.0},
		}},
	}); err != nil {
		return err
	}
	if _, err := engine.CreateRule(automation.RuleSpec{
		Name: "Vent hot dry greenhouse",
		Type: automation.RuleConditional,
		Conditions: []automation.SensorCondition{
			{SensorType: "temperature", Op: automation.OpGreaterThan, Threshold: 32},
			{SensorType: "humidity", Op: automation.OpLessThan, Threshold: 40},
		},
		Actions: []automation.RuleAction{{
			ActuatorID: vent.ID,
			Action:     "open",
			Parameters: map[string]any{"opening_percentage": 75.0},
		}},
	}); err != nil {
		return err
	}
	if _, err := engine.CreateRule(automation.RuleSpec{
		Name:     "Morning seedling lights",
		Type:     automation.RuleSchedule,
		DeviceID: probe.ID,
		Schedule: &automation.Schedule{Type: "daily", Hour: 6, Minute: 0},
		Actions: []automation.RuleAction{{
			ActuatorID: light.ID,
			Action:     "turn_on",
			Parameters: map[string]any{"intensity": 80.0},
		}},
	}); err != nil {
		return err
	}

	slog.Info("Demo data seeded", "actuators", 3, "devices", 2, "rules", 3)
	return nil
}
