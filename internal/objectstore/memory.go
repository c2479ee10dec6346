package objectstore

import (
	"context"
	"strings"
	"sync"
)

// Memory holds uploads in a map. Backs tests and local development.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemory(baseURL string) *Memory {
	return &Memory{
		objects: make(map[string][]byte),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (m *Memory) Upload(_ context.Context, data []byte, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[path] = buf
	return m.PublicURL(path), nil
}

func (m *Memory) PublicURL(path string) string {
	return m.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Get returns the stored bytes, for assertions in tests.
func (m *Memory) Get(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[path]
	return data, ok
}
