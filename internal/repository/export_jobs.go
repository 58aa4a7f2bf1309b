package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
)

// ExportJobsRepository abstracts export job rows. Status writes are
// targeted single-row updates so a rare duplicate delivery cannot
// clobber unrelated rows.
type ExportJobsRepository interface {
	CreateExportJob(ctx context.Context, job *domain.ExportJob) error
	GetExportJob(ctx context.Context, jobID string) (*domain.ExportJob, error)
	// UpdateExportJobStatus overwrites status, result key and error
	// message for one job id.
	UpdateExportJobStatus(ctx context.Context, jobID string, status domain.ExportJobStatus, resultKey, errorMessage string) error
}

type MemoryExportJobsRepository struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ExportJob
}

func NewMemoryExportJobsRepository() *MemoryExportJobsRepository {
	return &MemoryExportJobsRepository{jobs: make(map[string]*domain.ExportJob)}
}

func (r *MemoryExportJobsRepository) CreateExportJob(_ context.Context, job *domain.ExportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *MemoryExportJobsRepository) GetExportJob(_ context.Context, jobID string) (*domain.ExportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (r *MemoryExportJobsRepository) UpdateExportJobStatus(
	_ context.Context,
	jobID string,
	status domain.ExportJobStatus,
	resultKey, errorMessage string,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.ResultKey = resultKey
	job.ErrorMessage = errorMessage
	job.UpdatedAt = time.Now().UTC()
	return nil
}
