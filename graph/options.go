package graph

import (
	"github.com/runlens/runlens/graph/emit"
)

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine := graph.NewEngine("sess-001",
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	    graph.WithMetrics(metrics),
//	    graph.WithOrchestrator(client),
//	    graph.WithForkWindow(8),
//	)
type Option func(*Engine)

// WithEmitter sets the observability emitter. Default: NullEmitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(e *Engine) {
		if emitter != nil {
			e.emitter = emitter
		}
	}
}

// WithMetrics attaches Prometheus collectors. Default: no metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOrchestrator wires the upstream orchestrator used by Start, Resume,
// and RequestRerun. Engines that only consume externally obtained streams
// (or only rehydrate) can omit it.
func WithOrchestrator(orch Orchestrator) Option {
	return func(e *Engine) { e.orch = orch }
}

// WithUserID sets the user identity forwarded on orchestrator calls.
func WithUserID(userID string) Option {
	return func(e *Engine) { e.userID = userID }
}

// WithSnapshotFunc registers a subscriber invoked with a fresh snapshot
// after every applied event. The callback runs on the consuming goroutine;
// keep it cheap or hand off internally.
func WithSnapshotFunc(fn func(Snapshot)) Option {
	return func(e *Engine) { e.onSnapshot = fn }
}

// WithAggregationSteps replaces the designated aggregation steps whose live
// token output is mirrored into the final-answer slot.
//
// Default: "supervisor" and "aggregate".
func WithAggregationSteps(steps ...string) Option {
	return func(e *Engine) {
		agg := make(map[string]bool, len(steps))
		for _, step := range steps {
			agg[step] = true
		}
		e.state.aggregation = agg
	}
}

// WithForkWindow tunes how many of the most recent occurrences (by
// timestamp) have their incoming edges tagged LatestFork. Presentation
// sugar with no structural meaning; 0 disables tagging. Default: 5.
func WithForkWindow(n int) Option {
	return func(e *Engine) { e.state.forkWindow = n }
}

// WithClock overrides the logical clock used to stamp live events.
// Intended for tests that need deterministic timestamps.
func WithClock(now func() int64) Option {
	return func(e *Engine) {
		if now != nil {
			e.state.now = now
		}
	}
}
