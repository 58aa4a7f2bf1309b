package handlers

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/http/middleware"
	"github.com/Vinsen2024/lead-funnel-back/internal/service"
)

var errInvalidPayload = errors.New("invalid payload")

type API struct {
	attributionService *service.AttributionService
	sharesService      *service.SharesService
	leadsService       *service.LeadsService
	exportsService     *service.ExportsService
	teachersService    *service.TeachersService
	idempotency        *idempotencyStore
}

func NewAPI(
	attributionService *service.AttributionService,
	sharesService *service.SharesService,
	leadsService *service.LeadsService,
	exportsService *service.ExportsService,
	teachersService *service.TeachersService,
) *API {
	return &API{
		attributionService: attributionService,
		sharesService:      sharesService,
		leadsService:       leadsService,
		exportsService:     exportsService,
		teachersService:    teachersService,
		idempotency:        newIdempotencyStore(),
	}
}

type errorPayload struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	payload := errorPayload{RequestID: middleware.GetRequestID(r.Context())}
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, statusCode, payload)
}

func decodeJSON(r *http.Request, value any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(value); err != nil {
		return errInvalidPayload
	}
	return nil
}

type idempotencyEntry struct {
	PayloadHash uint64
	ResourceID  string
	CreatedAt   time.Time
}

// Retries worth deduplicating arrive within seconds; a day is long
// enough for any client backoff schedule.
const idempotencyTTL = 24 * time.Hour

// idempotencyStore deduplicates lead submissions: a mini-program retry
// with the same Idempotency-Key and payload replays the stored lead id
// instead of inserting a second row. Entries expire after ttl so the
// map does not grow for the process lifetime.
type idempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	ttl     time.Duration
}

func newIdempotencyStore() *idempotencyStore {
	store := &idempotencyStore{
		entries: make(map[string]idempotencyEntry),
		ttl:     idempotencyTTL,
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			store.sweep()
		}
	}()

	return store
}

func (s *idempotencyStore) Get(key string) (idempotencyEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if ok && time.Since(entry.CreatedAt) > s.ttl {
		delete(s.entries, key)
		return idempotencyEntry{}, false
	}
	return entry, ok
}

func (s *idempotencyStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if time.Since(entry.CreatedAt) > s.ttl {
			delete(s.entries, key)
		}
	}
}

func (s *idempotencyStore) Put(key string, payloadHash uint64, resourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idempotencyEntry{
		PayloadHash: payloadHash,
		ResourceID:  resourceID,
		CreatedAt:   time.Now().UTC(),
	}
}

func hashPayload(value any) uint64 {
	payload, _ := json.Marshal(value)
	hasher := fnv.New64a()
	_, _ = hasher.Write(payload)
	return hasher.Sum64()
}
