package graph

import "github.com/JonathanHHenson/hgraph/graph/emit"

// Option is a functional option for configuring a GraphEngine.
//
// Example:
//
//	engine := NewGraphEngine(g, RunModeRealTime,
//	    WithLifeCycleObserver(metrics),
//	    WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*GraphEngine)

// WithLifeCycleObserver registers an observer at construction time.
// Observers may also be added and removed later via
// AddLifeCycleObserver / RemoveLifeCycleObserver.
func WithLifeCycleObserver(o LifeCycleObserver) Option {
	return func(e *GraphEngine) {
		e.AddLifeCycleObserver(o)
	}
}

// WithEmitter bridges the engine's lifecycle observations onto an event
// emitter. Equivalent to WithLifeCycleObserver(NewEmitterObserver(em)).
func WithEmitter(em emit.Emitter) Option {
	return func(e *GraphEngine) {
		e.AddLifeCycleObserver(NewEmitterObserver(em))
	}
}

// WithMetrics registers Prometheus metrics collection for the engine.
// Equivalent to WithLifeCycleObserver(m).
func WithMetrics(m *PrometheusMetrics) Option {
	return func(e *GraphEngine) {
		e.AddLifeCycleObserver(m)
	}
}
