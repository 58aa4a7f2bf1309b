package repository

import (
	"context"
	"sync"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// BindingsRepository abstracts visitor attribution bindings. The
// storage layer must guarantee at most one row per (visitor, teacher)
// pair; UpsertBinding is the only write path.
type BindingsRepository interface {
	GetBinding(ctx context.Context, visitorID, teacherID string) (*domain.VisitorBinding, error)
	// UpsertBinding inserts the binding or, when a row for the same
	// (visitor, teacher) pair exists, overwrites its broker, share and
	// expiry in place.
	UpsertBinding(ctx context.Context, binding *domain.VisitorBinding) error
}

// MemoryBindingsRepository keeps bindings in a map keyed by the unique
// pair, which makes the upsert race-free under the mutex the same way
// the Postgres unique constraint does.
type MemoryBindingsRepository struct {
	mu       sync.RWMutex
	bindings map[string]*domain.VisitorBinding
}

func NewMemoryBindingsRepository() *MemoryBindingsRepository {
	return &MemoryBindingsRepository{bindings: make(map[string]*domain.VisitorBinding)}
}

func bindingKey(visitorID, teacherID string) string {
	return visitorID + "|" + teacherID
}

func (r *MemoryBindingsRepository) GetBinding(_ context.Context, visitorID, teacherID string) (*domain.VisitorBinding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	binding, ok := r.bindings[bindingKey(visitorID, teacherID)]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *binding
	return &clone, nil
}

func (r *MemoryBindingsRepository) UpsertBinding(_ context.Context, binding *domain.VisitorBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *binding
	r.bindings[bindingKey(binding.VisitorID, binding.TeacherID)] = &clone
	return nil
}

// Len reports the number of binding rows; used by tests asserting the
// unique-pair invariant.
func (r *MemoryBindingsRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}
