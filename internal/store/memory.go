package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process checkpoint store for tests and one-shot runs.
type MemoryStore struct {
	mu          sync.RWMutex
	snapshots   map[string]Snapshot
	transitions map[string][]Transition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string]Snapshot),
		transitions: make(map[string][]Transition),
	}
}

func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	snap.Data = append([]byte(nil), snap.Data...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ThreadID] = snap
	if snap.From != "" {
		m.transitions[snap.ThreadID] = append(m.transitions[snap.ThreadID], Transition{From: snap.From, To: snap.Node, At: snap.UpdatedAt})
	}
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, threadID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[threadID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap.Data = append([]byte(nil), snap.Data...)
	return snap, nil
}

func (m *MemoryStore) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[threadID]; !ok {
		return ErrNotFound
	}
	delete(m.snapshots, threadID)
	delete(m.transitions, threadID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, status string) ([]ThreadInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ThreadInfo
	for _, s := range m.snapshots {
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, ThreadInfo{ThreadID: s.ThreadID, Status: s.Status, Node: s.Node, UpdatedAt: s.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryStore) Transitions(ctx context.Context, threadID string) ([]Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.transitions[threadID]...), nil
}
