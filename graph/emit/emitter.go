package emit

// Emitter receives observability events from the reconstruction engine.
//
// Implementations should be:
//   - Non-blocking: token streams are high frequency; a slow emitter slows
//     reconstruction
//   - Thread-safe: engines for different sessions may share one emitter
//   - Resilient: an emitter failure must never crash the engine
//
// Emit must not panic; errors are handled internally.
type Emitter interface {
	Emit(event Event)
}
