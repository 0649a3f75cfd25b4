// Package memory keeps blobs in process memory. It stands in for S3 when
// the service runs with the memory storage driver.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// Object is a stored blob.
type Object struct {
	Data        []byte
	ContentType string
}

// Store implements domain.BlobWriter, domain.BlobReader and
// domain.BlobDeleter.
type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// New returns an empty Store.
func New() *Store {
	return &Store{objects: make(map[string]Object)}
}

func (s *Store) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("memblob: put %s: %w", path, err)
	}
	s.mu.Lock()
	s.objects[path] = Object{Data: b, ContentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *Store) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return s.Put(ctx, path, data, "")
}

func (s *Store) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memblob: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (s *Store) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	delete(s.objects, path)
	s.mu.Unlock()
	return nil
}

// Object returns the stored blob at path.
func (s *Store) Object(path string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	return obj, ok
}

// Paths lists every stored path in no particular order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objects))
	for p := range s.objects {
		out = append(out, p)
	}
	return out
}
