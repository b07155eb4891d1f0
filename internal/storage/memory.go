package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a process-local ledger used when no database is configured
type Memory struct {
	mu         sync.Mutex
	state      map[string]string
	dispatched map[string]DispatchedAlert
	now        func() time.Time
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		state:      make(map[string]string),
		dispatched: make(map[string]DispatchedAlert),
		now:        time.Now,
	}
}

func (m *Memory) GetState(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[key], nil
}

func (m *Memory) SetState(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[key] = value
	return nil
}

func (m *Memory) HasDispatched(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.dispatched[key]
	return ok, nil
}

func (m *Memory) LastDispatchFor(_ context.Context, address string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last int64
	found := false
	for _, a := range m.dispatched {
		if a.Address == address && (!found || a.CreatedTS > last) {
			last = a.CreatedTS
			found = true
		}
	}
	if !found {
		return time.Time{}, false, nil
	}
	return time.Unix(last, 0), true, nil
}

func (m *Memory) RecordDispatch(_ context.Context, alert *DispatchedAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.CreatedTS == 0 {
		alert.CreatedTS = m.now().Unix()
	}
	m.dispatched[alert.DedupKey] = *alert
	return nil
}

func (m *Memory) RecentDispatches(_ context.Context, limit int) ([]DispatchedAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]DispatchedAlert, 0, len(m.dispatched))
	for _, a := range m.dispatched {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTS != out[j].CreatedTS {
			return out[i].CreatedTS > out[j].CreatedTS
		}
		return out[i].DedupKey < out[j].DedupKey
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op
func (m *Memory) Close() error { return nil }
