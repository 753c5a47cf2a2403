package history

import (
	"context"
	"sync"
)

// MemSource is an in-memory Source and Recorder.
//
// Designed for tests and single-process development where a database is not
// worth standing up. Thread-safe. Data is lost when the process exits.
type MemSource struct {
	mu       sync.RWMutex
	steps    map[string][]StepLog
	topology map[string][]TopologyRecord
}

// NewMemSource creates an empty in-memory history source.
func NewMemSource() *MemSource {
	return &MemSource{
		steps:    make(map[string][]StepLog),
		topology: make(map[string][]TopologyRecord),
	}
}

// SaveStepLog appends a step-log row to the session's history.
func (m *MemSource) SaveStepLog(_ context.Context, row StepLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[row.SessionID] = append(m.steps[row.SessionID], row)
	return nil
}

// SaveTopology appends a checkpoint registration to the session's history.
func (m *MemSource) SaveTopology(_ context.Context, rec TopologyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topology[rec.SessionID] = append(m.topology[rec.SessionID], rec)
	return nil
}

// FetchStepHistory returns copies of the session's step-log rows.
func (m *MemSource) FetchStepHistory(_ context.Context, sessionID string) ([]StepLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.steps[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]StepLog(nil), rows...), nil
}

// FetchTopology returns copies of the session's checkpoint registrations.
func (m *MemSource) FetchTopology(_ context.Context, sessionID string) ([]TopologyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs, ok := m.topology[sessionID]
	if !ok {
		// A session may settle before any checkpoint is reported; only a
		// session with no step rows at all is unknown.
		if _, hasSteps := m.steps[sessionID]; hasSteps {
			return nil, nil
		}
		return nil, ErrNotFound
	}
	return append([]TopologyRecord(nil), recs...), nil
}
