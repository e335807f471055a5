// Package memstore provides in-memory ContentStore and Registry
// implementations. Used by tests and by the "memory" backends.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tutu-network/coord/internal/domain"
)

// Object is a stored blob together with the options it was uploaded with.
type Object struct {
	Data []byte
	Opts domain.UploadOptions
}

// Store is a goroutine-safe in-memory ContentStore.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object

	// FailUploads makes every upload return this error when set.
	FailUploads error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Upload stores a copy of data under a fresh id.
func (s *Store) Upload(_ context.Context, data []byte, opts domain.UploadOptions) (domain.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUploads != nil {
		return domain.UploadResult{}, s.FailUploads
	}

	id := uuid.NewString()
	s.objects[id] = Object{Data: append([]byte(nil), data...), Opts: opts}
	return domain.UploadResult{
		ID:   id,
		URL:  "mem://" + id,
		Size: int64(len(data)),
	}, nil
}

// UploadJSON marshals v and stores it.
func (s *Store) UploadJSON(ctx context.Context, v any, opts domain.UploadOptions) (domain.UploadResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("marshal json: %w", err)
	}
	return s.Upload(ctx, data, opts)
}

// Download returns a copy of the stored bytes.
func (s *Store) Download(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, id)
	}
	return append([]byte(nil), obj.Data...), nil
}

// DownloadJSON decodes the stored object into v.
func (s *Store) DownloadJSON(ctx context.Context, id string, v any) error {
	data, err := s.Download(ctx, id)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", id, err)
	}
	return nil
}

// Object returns the raw stored object, for inspecting upload options.
func (s *Store) Object(id string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[id]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Ping always succeeds.
func (s *Store) Ping() error { return nil }
