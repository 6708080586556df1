package tablestore

import (
	"context"
	"errors"
	"sync"
)

// Memory holds tables in process memory. Rows are copied on the way in and
// out, so callers never share slices with the store.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

func (m *Memory) Initialize(_ context.Context, t Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[t.Name]; !ok {
		m.tables[t.Name] = []Row{}
	}
	return nil
}

func (m *Memory) Load(_ context.Context, t Table) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[t.Name]
	if !ok {
		return nil, unavailable("load", t, errors.New("table not initialized"))
	}
	return cloneRows(rows), nil
}

func (m *Memory) Save(_ context.Context, t Table, rows []Row) error {
	if err := checkWidth(t, rows); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[t.Name] = cloneRows(rows)
	return nil
}
