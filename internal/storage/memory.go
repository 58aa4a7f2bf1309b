package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var ErrObjectNotFound = fmt.Errorf("object not found")

// MemoryStore keeps uploaded artifacts in memory. Signed URLs embed a
// per-call signature and expiry so polling callers observe fresh URLs
// for the same underlying key.
type MemoryStore struct {
	baseURL string
	counter atomic.Uint64

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "https://exports.local"
	}
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

func (s *MemoryStore) Upload(_ context.Context, key string, data []byte) (UploadResult, error) {
	s.mu.Lock()
	s.objects[key] = append([]byte(nil), data...)
	s.mu.Unlock()
	return UploadResult{URL: s.baseURL + "/" + key}, nil
}

func (s *MemoryStore) SignURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	if ttl <= 0 {
		ttl = time.Hour
	}
	nonce := s.counter.Add(1)
	expires := time.Now().UTC().Add(ttl).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", key, expires, nonce)))
	signature := hex.EncodeToString(sum[:])[:16]

	return fmt.Sprintf("%s/%s?sign=%s&expires=%d", s.baseURL, key, signature, expires), nil
}

// Object returns a stored artifact; used by tests to assert uploads.
func (s *MemoryStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
