package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// CatalogRepository reads teachers, their capability modules and
// brokers. The catalog is owned by back-office flows; this subsystem
// only reads it.
type CatalogRepository interface {
	GetTeacher(ctx context.Context, teacherID string) (*domain.Teacher, error)
	// GetActiveModules returns the teacher's active modules ordered by
	// sort order.
	GetActiveModules(ctx context.Context, teacherID string) ([]domain.TeacherModule, error)
	GetBroker(ctx context.Context, brokerID string) (*domain.Broker, error)
}

type MemoryCatalogRepository struct {
	mu       sync.RWMutex
	teachers map[string]*domain.Teacher
	modules  map[string][]domain.TeacherModule
	brokers  map[string]*domain.Broker
}

func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		teachers: make(map[string]*domain.Teacher),
		modules:  make(map[string][]domain.TeacherModule),
		brokers:  make(map[string]*domain.Broker),
	}
}

func (r *MemoryCatalogRepository) PutTeacher(teacher *domain.Teacher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *teacher
	r.teachers[teacher.ID] = &clone
}

func (r *MemoryCatalogRepository) PutModule(module domain.TeacherModule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[module.TeacherID] = append(r.modules[module.TeacherID], module)
}

func (r *MemoryCatalogRepository) PutBroker(broker *domain.Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *broker
	r.brokers[broker.ID] = &clone
}

func (r *MemoryCatalogRepository) GetTeacher(_ context.Context, teacherID string) (*domain.Teacher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	teacher, ok := r.teachers[teacherID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *teacher
	return &clone, nil
}

func (r *MemoryCatalogRepository) GetActiveModules(_ context.Context, teacherID string) ([]domain.TeacherModule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]domain.TeacherModule, 0)
	for _, module := range r.modules[teacherID] {
		if module.IsActive {
			items = append(items, module)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SortOrder < items[j].SortOrder
	})
	return items, nil
}

func (r *MemoryCatalogRepository) GetBroker(_ context.Context, brokerID string) (*domain.Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	broker, ok := r.brokers[brokerID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *broker
	return &clone, nil
}
