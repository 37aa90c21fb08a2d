// Package emit provides event emission and observability for engine runs.
package emit

import "context"

// Emitter receives and processes observability events from engine
// execution.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog.
//   - Distributed tracing: OpenTelemetry.
//   - In-memory capture for tests and dashboards.
//
// Implementations should be:
//   - Non-blocking: the engine emits from its evaluation goroutine, so a
//     slow emitter slows every tick.
//   - Thread-safe: buffered emitters may be queried while a run is live.
//   - Resilient: emission failures are logged, not raised into the run.
type Emitter interface {
	// Emit sends one event to the configured backend. Emit must not
	// panic; backend errors are handled internally.
	Emit(event Event)

	// EmitBatch sends multiple events in a single operation. Events are
	// processed in order. Returns an error only on catastrophic
	// failures; individual event failures are logged and skipped.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush ensures all buffered events are delivered. Call before
	// shutdown or whenever immediate visibility is needed. Idempotent.
	Flush(ctx context.Context) error
}
