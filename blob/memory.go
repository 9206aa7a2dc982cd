package blob

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in memory. Failures can be injected per
// reference for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	errs    map[string]error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

// Put stores data under ref.
func (s *MemoryStore) Put(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = append([]byte(nil), data...)
}

// Delete removes ref.
func (s *MemoryStore) Delete(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
}

// FailWith makes every Fetch of ref return err until cleared with a nil err.
func (s *MemoryStore) FailWith(ref string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, ref)
		return
	}
	s.errs[ref] = err
}

// Fetch returns a copy of the stored data.
func (s *MemoryStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.errs[ref]; ok {
		return nil, err
	}
	data, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}
