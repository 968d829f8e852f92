// Package agroflow is the automation core of an agricultural monitoring
// platform: actuator management, serialized action execution, and rule-based
// automation over streaming sensor readings.
//
// # Architecture
//
// AgroFlow is built from three core components plus supporting infrastructure:
//
//	┌─────────────────────────────────────┐
//	│        Automation Engine            │  Rule storage and evaluation,
//	│  (threshold, schedule, conditional, │  reading ingestion, action
//	│   sequence rules)                   │  dispatch, execution audit
//	└─────────────────────────────────────┘
//	           ↓ submits actions
//	┌─────────────────────────────────────┐
//	│         Action Queue                │  FIFO, single-worker execution,
//	│  (validation, simulated execution,  │  at most one action in flight
//	│   outcome tracking)                 │  system-wide
//	└─────────────────────────────────────┘
//	           ↓ mutates state through
//	┌─────────────────────────────────────┐
//	│       Actuator Registry             │  Actuator definitions, status,
//	│  (lookup, status, configuration,    │  performance counters,
//	│   aggregate statistics)             │  snapshot subscriptions
//	└─────────────────────────────────────┘
//
// Readings flow in from the device data source (or any external caller of
// Engine.ProcessReading), matching rules dispatch actions through the queue,
// and every settled action or rule execution emits a structured alert event.
//
// # Components and Packages
//
// Core:
//   - actuator: actuator data model and registry
//   - actionqueue: serialized action execution with simulated hardware latency
//   - automation: rule definitions, matching, and dispatch
//   - alert: structured alert events and sinks (NATS, in-memory, fan-out)
//
// Collaborators:
//   - device: synthetic sensor reading source driving the engine on a timer
//   - gateway: HTTP command/read API plus WebSocket snapshot streaming
//
// Infrastructure:
//   - component: lifecycle contract (Initialize / Start / Stop) and health
//   - config: JSON configuration with environment overrides
//   - errors: error classification and wrapping helpers
//   - metric: Prometheus registry and exposition
//   - natsclient: managed NATS connection for alert publishing
//   - pkg/buffer: bounded most-recent-first history buffers
//   - pkg/pubsub: typed subscriber fan-out with panic isolation
//   - pkg/retry: exponential backoff for transient failures
//
// # Concurrency Model
//
// The action queue's single worker goroutine is the only serialization point
// for actuator state mutation: at most one action executes at any instant,
// regardless of how many actuators exist. Concurrent Submit calls enqueue
// safely in FIFO order. The engine processes one reading at a time; a reading
// arriving while a prior pass is still dispatching is dropped and counted,
// on the assumption that the next periodic reading covers the gap.
//
// # Failure Semantics
//
// Validation failures (unknown actuator, disabled actuator, unsupported
// action) fail fast and synchronously at the Submit boundary. Execution-time
// failures are recorded on the action record, leave the actuator in error
// status, and surface through the alert channel; they are never thrown back
// to the submitter. A failed actuator requires an explicit SetStatus call to
// recover.
package agroflow
