package fetch

import "sync"

// hostMap lazily builds one value per host behind a read-mostly lock.
type hostMap[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	build func(host string) T
}

func newHostMap[T any](build func(host string) T) *hostMap[T] {
	return &hostMap[T]{items: make(map[string]T), build: build}
}

func (m *hostMap[T]) get(host string) T {
	m.mu.RLock()
	v, ok := m.items[host]
	m.mu.RUnlock()
	if ok {
		return v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.items[host]; ok {
		return v
	}
	v = m.build(host)
	m.items[host] = v
	return v
}
