package storage

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// Memory is a process-local engine. Nothing survives Close.
type Memory struct {
	mu        sync.Mutex
	facts     map[string]string
	incidents []model.Incident
	nextID    int64
}

// NewMemory returns an empty in-memory engine.
func NewMemory() *Memory {
	return &Memory{facts: make(map[string]string), nextID: 1}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) PutFact(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.facts[key] = value
	return nil
}

func (m *Memory) GetFact(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.facts[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListFacts(_ context.Context) ([]model.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Fact, 0, len(m.facts))
	for k, v := range m.facts {
		out = append(out, model.Fact{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) InsertIncident(_ context.Context, summary, resolution string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(summary, resolution), nil
}

func (m *Memory) insertLocked(summary, resolution string) int64 {
	id := m.nextID
	m.nextID++
	m.incidents = append(m.incidents, model.Incident{ID: id, Summary: summary, Resolution: resolution})
	return id
}

func (m *Memory) CountIncidents(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.incidents), nil
}

func (m *Memory) ListIncidents(_ context.Context, limit int) ([]model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.incidents)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(m.incidents[:n]), nil
}

func (m *Memory) SearchIncidents(_ context.Context, substr string) ([]model.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Incident
	for _, inc := range m.incidents {
		if strings.Contains(inc.Summary, substr) {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (m *Memory) DeleteIncidents(_ context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(ids)
	return nil
}

func (m *Memory) deleteLocked(ids []int64) {
	m.incidents = slices.DeleteFunc(m.incidents, func(inc model.Incident) bool {
		return slices.Contains(ids, inc.ID)
	})
}

func (m *Memory) ReplaceIncidents(_ context.Context, ids []int64, summary, resolution string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(ids)
	return m.insertLocked(summary, resolution), nil
}
