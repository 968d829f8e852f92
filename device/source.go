// Package device produces synthetic sensor readings on a fixed polling
// interval and feeds them into the rule engine. It stands in for the field
// hardware during development and demos; the reading shape it emits is the
// real ingestion contract.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/agroflow/alert"
	"github.com/c360/agroflow/automation"
	"github.com/c360/agroflow/component"
	"github.com/c360/agroflow/errors"
)

// Type identifies a kind of field device.
type Type string

// Supported device types
const (
	TypeSoilSensor           Type = "soil_sensor"
	TypeWeatherStation       Type = "weather_station"
	TypeIrrigationController Type = "irrigation_controller"
	TypeCropMonitor          Type = "crop_monitor"
)

// deviceSensors maps each device type to the sensors it reports.
var deviceSensors = map[Type][]string{
	TypeSoilSensor:           {"moisture", "temperature", "ph"},
	TypeWeatherStation:       {"temperature", "humidity", "pressure", "wind_speed", "rainfall", "solar_radiation"},
	TypeIrrigationController: {"water_flow", "pressure"},
	TypeCropMonitor:          {"ndvi", "solar_radiation"},
}

// Valid reports whether t is a known device type.
func (t Type) Valid() bool {
	_, ok := deviceSensors[t]
	return ok
}

// Sensors returns a copy of the type's sensor set.
func (t Type) Sensors() []string {
	sensors, ok := deviceSensors[t]
	if !ok {
		return nil
	}
	out := make([]string, len(sensors))
	copy(out, sensors)
	return out
}

// Device is one registered synthetic device.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`
	Zone string `json:"zone,omitempty"`
}

// Ingestor receives generated readings. Satisfied by automation.Engine.
type Ingestor interface {
	ProcessReading(ctx context.Context, deviceID string, reading automation.Reading)
}

// poorQualityRate is the fraction of readings flagged poor.
const poorQualityRate = 0.1

// Config holds source tuning parameters
type Config struct {
	// PollInterval is the per-cycle spacing between reading rounds.
	PollInterval time.Duration
}

// DefaultConfig returns the standard source configuration.
func DefaultConfig() Config {
	return Config{PollInterval: 30 * time.Second}
}

// Source generates readings for its registered devices on a timer and
// delivers them to the ingestor. Poor-quality readings additionally raise a
// LOW-severity data quality alert.
type Source struct {
	config Config
	engine Ingestor
	alerts alert.Sink
	logger *slog.Logger

	mu      sync.Mutex
	devices []Device
	rng     *rand.Rand

	state     component.State
	startTime time.Time
	generated int64
	shutdown  chan struct{}
	done      chan struct{}
}

// NewSource creates a reading source feeding the given ingestor. A nil sink
// discards data quality alerts.
func NewSource(engine Ingestor, sink alert.Sink, cfg Config) *Source {
	if sink == nil {
		sink = alert.Discard
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Source{
		config: cfg,
		engine: engine,
		alerts: sink,
		logger: slog.Default().With("component", "device-source"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		state:  component.StateCreated,
	}
}

// AddDevice registers a synthetic device and returns it with a fresh id.
func (s *Source) AddDevice(name string, deviceType Type, zone string) (Device, error) {
	if !deviceType.Valid() {
		return Device{}, errors.WrapInvalid(
			fmt.Errorf("unknown device type %q", deviceType),
			"Source", "AddDevice", "validate type")
	}
	d := Device{
		ID:   "device_" + uuid.NewString(),
		Name: name,
		Type: deviceType,
		Zone: zone,
	}
	s.mu.Lock()
	s.devices = append(s.devices, d)
	s.mu.Unlock()

	s.logger.Info("Device added", "device_id", d.ID, "type", d.Type, "name", d.Name)
	return d, nil
}

// Devices returns a copy of the registered devices.
func (s *Source) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Meta implements component.LifecycleComponent.
func (s *Source) Meta() component.Metadata {
	return component.Metadata{
		Name:        "device-source",
		Type:        "input",
		Description: "Synthetic sensor reading generator",
		Version:     "1.0.0",
	}
}

// Health implements component.LifecycleComponent.
func (s *Source) Health() component.HealthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := component.HealthStatus{
		Healthy:   s.state == component.StateStarted,
		LastCheck: time.Now(),
	}
	if !s.startTime.IsZero() {
		h.Uptime = time.Since(s.startTime)
	}
	return h
}

// Initialize implements component.LifecycleComponent.
func (s *Source) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != component.StateCreated {
		return errors.WrapInvalid(
			fmt.Errorf("cannot initialize from state %s", s.state),
			"Source", "Initialize", "check state")
	}
	if s.engine == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Source", "Initialize", "require ingestor")
	}
	s.state = component.StateInitialized
	return nil
}

// Start launches the polling loop.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case component.StateStarted:
		return errors.ErrAlreadyStarted
	case component.StateInitialized:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("cannot start from state %s", s.state),
			"Source", "Start", "check state")
	}

	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})
	s.startTime = time.Now()
	s.state = component.StateStarted

	go s.run(ctx)

	s.logger.Info("Device source started", "poll_interval", s.config.PollInterval)
	return nil
}

// Stop signals the polling loop and waits up to timeout for it to exit.
func (s *Source) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != component.StateStarted {
		s.mu.Unlock()
		return errors.ErrNotStarted
	}
	close(s.shutdown)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(timeout):
		s.mu.Lock()
		s.state = component.StateFailed
		s.mu.Unlock()
		return errors.WrapTransient(errors.ErrConnectionTimeout, "Source", "Stop", "wait for poller")
	}

	s.mu.Lock()
	s.state = component.StateStopped
	s.mu.Unlock()
	s.logger.Info("Device source stopped")
	return nil
}

func (s *Source) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll generates one reading per registered device and delivers each to the
// ingestor. Exposed for on-demand polling alongside the timer.
func (s *Source) Poll(ctx context.Context) {
	for _, d := range s.Devices() {
		reading := s.generate(d)
		if reading.Quality == automation.QualityPoor {
			s.emitDataQualityAlert(ctx, d)
		}
		s.engine.ProcessReading(ctx, d.ID, reading)

		s.mu.Lock()
		s.generated++
		s.mu.Unlock()
	}
}

// generate builds one synthetic reading for the device's sensor set.
func (s *Source) generate(d Device) automation.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	sensors := make(map[string]automation.SensorValue)
	for _, name := range deviceSensors[d.Type] {
		sensors[name] = s.sensorValue(name)
	}

	quality := automation.QualityGood
	if s.rng.Float64() < poorQualityRate {
		quality = automation.QualityPoor
	}

	return automation.Reading{
		Timestamp: time.Now(),
		Sensors:   sensors,
		Quality:   quality,
	}
}

// sensorValue draws from each sensor's characteristic range.
func (s *Source) sensorValue(name string) automation.SensorValue {
	r := s.rng.Float64()
	switch name {
	case "moisture":
		return automation.SensorValue{Value: 45 + r*30, Unit: "%"}
	case "temperature":
		return automation.SensorValue{Value: 20 + r*15, Unit: "°C"}
	case "ph":
		return automation.SensorValue{Value: 6.5 + r*1.5, Unit: "pH"}
	case "humidity":
		return automation.SensorValue{Value: 40 + r*40, Unit: "%"}
	case "pressure":
		return automation.SensorValue{Value: 1000 + r*50, Unit: "hPa"}
	case "wind_speed":
		return automation.SensorValue{Value: r * 20, Unit: "m/s"}
	case "rainfall":
		return automation.SensorValue{Value: r * 10, Unit: "mm"}
	case "solar_radiation":
		return automation.SensorValue{Value: r * 1000, Unit: "W/m²"}
	case "ndvi":
		return automation.SensorValue{Value: 0.2 + r*0.6, Unit: "index"}
	case "water_flow":
		return automation.SensorValue{Value: r * 100, Unit: "L/min"}
	default:
		return automation.SensorValue{Value: r * 100, Unit: "units"}
	}
}

func (s *Source) emitDataQualityAlert(ctx context.Context, d Device) {
	if err := s.alerts.Emit(ctx, alert.Event{
		Type:     alert.TypeDataQuality,
		Severity: alert.SeverityLow,
		DeviceID: d.ID,
		Data: map[string]any{
			"device_name": d.Name,
			"device_type": string(d.Type),
			"quality":     automation.QualityPoor,
		},
	}); err != nil {
		s.logger.Warn("Alert emit failed", "device_id", d.ID, "error", err)
	}
}
