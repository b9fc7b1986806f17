package blob

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type object struct {
	data        []byte
	contentType string
}

// MemoryStore is an in-process Store. The Fail* fields inject errors.
type MemoryStore struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]object

	FailPut    error
	FailSign   error
	FailRemove error
}

// NewMemoryStore creates an empty store whose signed URLs name bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]object)}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPut != nil {
		return fmt.Errorf("failed to put object %s: %w", key, m.FailPut)
	}
	if _, ok := m.objects[key]; ok {
		return fmt.Errorf("failed to put object %s: %w", key, ErrObjectExists)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[key] = object{data: buf, contentType: contentType}
	return nil
}

// RemoveMany implements Store.
func (m *MemoryStore) RemoveMany(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRemove != nil {
		failed := make(map[string]string, len(keys))
		for _, k := range keys {
			failed[k] = m.FailRemove.Error()
		}
		return &RemoveError{Failed: failed}
	}
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

// Sign implements Store.
func (m *MemoryStore) Sign(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSign != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, m.FailSign)
	}
	if _, ok := m.objects[key]; !ok {
		return "", fmt.Errorf("failed to sign %s: object not found", key)
	}

	u := url.URL{
		Scheme:   "memory",
		Host:     m.bucket,
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {time.Now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode(),
	}
	return u.String(), nil
}

// Exists reports whether key is stored.
func (m *MemoryStore) Exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Get returns a copy of the stored object.
func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	buf := make([]byte, len(obj.data))
	copy(buf, obj.data)
	return buf, obj.contentType, true
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
