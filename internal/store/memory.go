package store

import (
	"context"
	"sync"
)

// Memory is an in-process store for tests and the HTTP service when no
// persistence is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory { return &Memory{m: map[string][]byte{}} }

func (s *Memory) Get(_ context.Context, keys ...string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := s.m[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *Memory) Set(_ context.Context, values map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = map[string][]byte{}
	}
	for k, v := range values {
		s.m[k] = append([]byte(nil), v...)
	}
	return nil
}
