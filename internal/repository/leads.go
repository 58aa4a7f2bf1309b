package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// LeadsRepository abstracts lead persistence. Leads are written once
// by intake; only the lifecycle status changes afterwards.
type LeadsRepository interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	GetLead(ctx context.Context, leadID string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadListFilter) ([]domain.LeadListItem, int, error)
	UpdateLeadStatus(ctx context.Context, leadID string, status domain.LeadStatus) error
}

type MemoryLeadsRepository struct {
	mu    sync.RWMutex
	leads map[string]*domain.Lead
}

func NewMemoryLeadsRepository() *MemoryLeadsRepository {
	return &MemoryLeadsRepository{leads: make(map[string]*domain.Lead)}
}

func (r *MemoryLeadsRepository) CreateLead(_ context.Context, lead *domain.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leads[lead.ID] = cloneLead(lead)
	return nil
}

func (r *MemoryLeadsRepository) GetLead(_ context.Context, leadID string) (*domain.Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLead(lead), nil
}

func (r *MemoryLeadsRepository) ListLeads(_ context.Context, filter domain.LeadListFilter) ([]domain.LeadListItem, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	r.mu.RLock()
	items := make([]domain.LeadListItem, 0)
	for _, lead := range r.leads {
		if filter.TeacherID != "" && lead.TeacherID != filter.TeacherID {
			continue
		}
		if filter.BrokerID != "" && lead.BrokerID != filter.BrokerID {
			continue
		}
		items = append(items, domain.LeadListItem{
			ID:            lead.ID,
			Intent:        lead.Intent,
			LeaderSummary: lead.LeaderSummary,
			Status:        lead.Status,
			CreatedAt:     lead.CreatedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.LeadListItem{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return items[start:end], total, nil
}

func (r *MemoryLeadsRepository) UpdateLeadStatus(_ context.Context, leadID string, status domain.LeadStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[leadID]
	if !ok {
		return ErrNotFound
	}
	lead.Status = status
	return nil
}

func cloneLead(lead *domain.Lead) *domain.Lead {
	if lead == nil {
		return nil
	}
	clone := *lead
	clone.Input = append([]byte(nil), lead.Input...)
	clone.ClarifyingQuestions = append([]string(nil), lead.ClarifyingQuestions...)
	return &clone
}
