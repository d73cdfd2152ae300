package naming

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

// Static is an in-process name table.
type Static struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewStatic creates a table seeded with entries. The map is copied.
func NewStatic(entries map[string]string) *Static {
	s := &Static{entries: make(map[string]string, len(entries))}
	maps.Copy(s.entries, entries)
	return s
}

// Register adds or replaces name.
func (s *Static) Register(_ context.Context, name, uri string) error {
	if err := validate(name, uri); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = uri
	return nil
}

// Lookup returns the URI for name.
func (s *Static) Lookup(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uri, ok := s.entries[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}
	return uri, nil
}

// Unregister removes name.
func (s *Static) Unregister(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, name)
	return nil
}
