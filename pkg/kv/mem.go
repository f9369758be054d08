package kv

import (
	"strings"
	"sync"
)

// MemKV is an in-memory KV store used by the unit test harness in place of
// a bolt file, so tests run with no filesystem dependency.
type MemKV struct {
	mu sync.Mutex
	m  map[string]string
}

// NewMemKV returns an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{m: make(map[string]string)}
}

// Get returns the value stored at key.
func (m *MemKV) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[key]
	if !ok {
		return "", &notFoundError{key: key}
	}
	return v, nil
}

// Put stores value at key.
func (m *MemKV) Put(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
	return nil
}

// Delete removes key.
func (m *MemKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
	return nil
}

// List returns every key with the given prefix.
func (m *MemKV) List(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close is a no-op.
func (m *MemKV) Close() error { return nil }
