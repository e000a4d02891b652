package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrObjectNotFound is returned by MemoryObjectStore for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryObjectStore keeps objects in memory. It backs tests and local runs.
type MemoryObjectStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryObjectStore returns an empty store for bucket.
func NewMemoryObjectStore(bucket string) *MemoryObjectStore {
	return &MemoryObjectStore{bucket: bucket, objects: make(map[string]Object)}
}

// NewMemoryBuckets returns in-memory stores for all portal buckets.
func NewMemoryBuckets() Buckets {
	return Buckets{
		DoctorDocuments:      NewMemoryObjectStore(BucketDoctorDocuments),
		ProfilePhotos:        NewMemoryObjectStore(BucketProfilePhotos),
		ComplaintAttachments: NewMemoryObjectStore(BucketComplaintAttachments),
	}
}

func (m *MemoryObjectStore) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("put object: read %d bytes, expected %d", n, size)
	}
	m.mu.Lock()
	m.objects[key] = Object{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return nil
}

func (m *MemoryObjectStore) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrObjectNotFound
	}
	return fmt.Sprintf("memory://%s/%s?expires=%d", m.bucket, key, int(expiry.Seconds())), nil
}

func (m *MemoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored object.
func (m *MemoryObjectStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Len reports how many objects are stored.
func (m *MemoryObjectStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
