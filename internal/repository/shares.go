package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// SharesRepository abstracts share link persistence.
type SharesRepository interface {
	CreateShare(ctx context.Context, share *domain.Share) error
	// GetShare returns the share by its public share id regardless of
	// the active flag; callers decide usability.
	GetShare(ctx context.Context, shareID string) (*domain.Share, error)
	// FindActiveShare returns the newest active share for a
	// (broker, teacher) pair, or ErrNotFound.
	FindActiveShare(ctx context.Context, brokerID, teacherID string) (*domain.Share, error)
	ListBrokerShares(ctx context.Context, brokerID string) ([]domain.Share, error)
	DeactivateShare(ctx context.Context, shareID string) error
}

// MemorySharesRepository stores shares in memory for local development
// and tests.
type MemorySharesRepository struct {
	mu     sync.RWMutex
	shares map[string]*domain.Share
}

func NewMemorySharesRepository() *MemorySharesRepository {
	return &MemorySharesRepository{shares: make(map[string]*domain.Share)}
}

func (r *MemorySharesRepository) CreateShare(_ context.Context, share *domain.Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *share
	r.shares[share.ShareID] = &clone
	return nil
}

func (r *MemorySharesRepository) GetShare(_ context.Context, shareID string) (*domain.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	share, ok := r.shares[shareID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *share
	return &clone, nil
}

func (r *MemorySharesRepository) FindActiveShare(_ context.Context, brokerID, teacherID string) (*domain.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *domain.Share
	for _, share := range r.shares {
		if !share.IsActive || share.BrokerID != brokerID || share.TeacherID != teacherID {
			continue
		}
		if newest == nil || share.CreatedAt.After(newest.CreatedAt) {
			newest = share
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	clone := *newest
	return &clone, nil
}

func (r *MemorySharesRepository) ListBrokerShares(_ context.Context, brokerID string) ([]domain.Share, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.Share, 0)
	for _, share := range r.shares {
		if share.BrokerID == brokerID && share.IsActive {
			items = append(items, *share)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (r *MemorySharesRepository) DeactivateShare(_ context.Context, shareID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	share, ok := r.shares[shareID]
	if !ok {
		return ErrNotFound
	}
	share.IsActive = false
	return nil
}
