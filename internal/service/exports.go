package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/queue"
	"github.com/Vinsen2024/lead-funnel-back/internal/report"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/Vinsen2024/lead-funnel-back/internal/storage"
	"github.com/google/uuid"
)

// SignedURLTTL bounds the lifetime of result URLs handed to callers;
// GetStatus re-signs on every read so the stored key stays usable.
const SignedURLTTL = time.Hour

type ExportStatus struct {
	JobID        string
	Status       domain.ExportJobStatus
	ResultURL    string
	ErrorMessage string
}

type ExportsService struct {
	jobs     repository.ExportJobsRepository
	leads    repository.LeadsRepository
	producer queue.Producer
	store    storage.Store
	logger   *log.Logger
}

func NewExportsService(
	jobs repository.ExportJobsRepository,
	leads repository.LeadsRepository,
	producer queue.Producer,
	store storage.Store,
	logger *log.Logger,
) *ExportsService {
	return &ExportsService{
		jobs:     jobs,
		leads:    leads,
		producer: producer,
		store:    store,
		logger:   logger,
	}
}

// CreateJob inserts a PENDING row and then enqueues the work item, in
// that order, so a worker can always resolve the job id it dequeues.
// Low coverage does not block the job; it only shapes the rendered
// risk section.
func (s *ExportsService) CreateJob(ctx context.Context, leadID string, jobType domain.ExportJobType) (string, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return "", fmt.Errorf("lead %s: %w", leadID, err)
	}

	if jobType == "" {
		jobType = domain.ExportTypeMatchReport
	}
	if jobType == domain.ExportTypeMatchReport && lead.CoverageScore < report.CoverageGapThreshold {
		if s.logger != nil {
			s.logger.Printf(
				"low coverage lead, report will carry the gap warning lead_id=%s score=%.2f",
				leadID, lead.CoverageScore,
			)
		}
	}

	now := time.Now().UTC()
	job := &domain.ExportJob{
		ID:        uuid.NewString(),
		LeadID:    leadID,
		Type:      jobType,
		Status:    domain.ExportStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateExportJob(ctx, job); err != nil {
		return "", fmt.Errorf("create export job: %w", err)
	}

	task := domain.ExportTask{
		JobID:       job.ID,
		LeadID:      leadID,
		Attempt:     0,
		RequestedAt: now,
	}
	if err := s.producer.Enqueue(ctx, task); err != nil {
		_ = s.jobs.UpdateExportJobStatus(ctx, job.ID, domain.ExportStatusFailed, "", err.Error())
		return "", fmt.Errorf("enqueue export task: %w", err)
	}

	if s.logger != nil {
		s.logger.Printf("export job created job_id=%s lead_id=%s type=%s", job.ID, leadID, jobType)
	}
	return job.ID, nil
}

// GetStatus returns the job's current state. For SUCCEEDED jobs the
// stored object key is re-signed on every read; signed URLs expire, so
// the key is the durable value, never a cached URL.
func (s *ExportsService) GetStatus(ctx context.Context, jobID string) (ExportStatus, error) {
	job, err := s.jobs.GetExportJob(ctx, jobID)
	if err != nil {
		return ExportStatus{}, fmt.Errorf("export job %s: %w", jobID, err)
	}

	status := ExportStatus{
		JobID:        job.ID,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
	}
	if job.Status == domain.ExportStatusSucceeded && job.ResultKey != "" {
		signed, err := s.store.SignURL(ctx, job.ResultKey, SignedURLTTL)
		if err != nil {
			return ExportStatus{}, fmt.Errorf("sign result url: %w", err)
		}
		status.ResultURL = signed
	}
	return status, nil
}
