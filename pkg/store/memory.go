package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryTable is an in-process Table, used for local runs and tests.
type MemoryTable[T Entity] struct {
	mu   sync.RWMutex
	rows map[string]T
}

// NewMemoryTable returns an empty MemoryTable.
func NewMemoryTable[T Entity]() *MemoryTable[T] {
	return &MemoryTable[T]{rows: make(map[string]T)}
}

func (m *MemoryTable[T]) Get(ctx context.Context, key string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[key]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return row, nil
}

// Scan returns rows ordered by key.
func (m *MemoryTable[T]) Scan(ctx context.Context) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.rows))
	for k := range m.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]T, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, m.rows[k])
	}
	return rows, nil
}

func (m *MemoryTable[T]) Put(ctx context.Context, entity T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[entity.Key()] = entity
	return nil
}

func (m *MemoryTable[T]) PutIfAbsent(ctx context.Context, entity T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rows[entity.Key()]; ok {
		return ErrAlreadyExists
	}
	m.rows[entity.Key()] = entity
	return nil
}

// Len returns the number of stored rows.
func (m *MemoryTable[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

var _ Table[Entity] = (*MemoryTable[Entity])(nil)
