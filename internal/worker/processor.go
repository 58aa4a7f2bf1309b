package worker

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
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// Concurrency bounds simultaneous renders to protect the render
	// and upload resources.
	Concurrency int
	// JobTimeout is the hard wall-clock budget for one render-and-
	// upload execution.
	JobTimeout time.Duration
}

// Processor consumes export tasks and drives the job status machine:
// RUNNING on receipt, then SUCCEEDED or FAILED. Returning an error to
// the queue lets its retry policy redeliver the task; the attempt cap
// there is the only backstop against infinite retry.
type Processor struct {
	consumer queue.Consumer
	jobs     repository.ExportJobsRepository
	leads    repository.LeadsRepository
	catalog  repository.CatalogRepository
	store    storage.Store
	renderer *report.Renderer
	logger   *log.Logger

	concurrency int
	jobTimeout  time.Duration
}

func NewProcessor(
	consumer queue.Consumer,
	jobs repository.ExportJobsRepository,
	leads repository.LeadsRepository,
	catalog repository.CatalogRepository,
	store storage.Store,
	renderer *report.Renderer,
	config Config,
	logger *log.Logger,
) *Processor {
	if config.Concurrency <= 0 {
		config.Concurrency = 2
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 60 * time.Second
	}
	return &Processor{
		consumer:    consumer,
		jobs:        jobs,
		leads:       leads,
		catalog:     catalog,
		store:       store,
		renderer:    renderer,
		logger:      logger,
		concurrency: config.Concurrency,
		jobTimeout:  config.JobTimeout,
	}
}

// Start runs the fixed-size consumer pool until the context ends.
func (p *Processor) Start(ctx context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		group.Go(func() error {
			p.consumeLoop(groupCtx)
			return nil
		})
	}
	_ = group.Wait()
}

func (p *Processor) consumeLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processTask)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processTask(ctx context.Context, task domain.ExportTask) error {
	job, err := p.jobs.GetExportJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", task.JobID, err)
	}
	if job.Status == domain.ExportStatusSucceeded {
		// Duplicate delivery after success; nothing to redo.
		return nil
	}

	// A redelivered attempt starts clean: the previous error message
	// is cleared when RUNNING is recorded.
	if err := p.jobs.UpdateExportJobStatus(ctx, job.ID, domain.ExportStatusRunning, "", ""); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if p.logger != nil {
		p.logger.Printf("export started job_id=%s lead_id=%s attempt=%d", job.ID, task.LeadID, task.Attempt)
	}

	resultKey, renderErr := p.renderAndUpload(ctx, job.ID, task.LeadID)
	if renderErr != nil {
		_ = p.jobs.UpdateExportJobStatus(ctx, job.ID, domain.ExportStatusFailed, "", renderErr.Error())
		if p.logger != nil {
			p.logger.Printf("export failed job_id=%s attempt=%d err=%v", job.ID, task.Attempt, renderErr)
		}
		return renderErr
	}

	if err := p.jobs.UpdateExportJobStatus(ctx, job.ID, domain.ExportStatusSucceeded, resultKey, ""); err != nil {
		return fmt.Errorf("mark succeeded: %w", err)
	}
	if p.logger != nil {
		p.logger.Printf("export succeeded job_id=%s key=%s", job.ID, resultKey)
	}
	return nil
}

// renderAndUpload runs under the hard job timeout. When the budget is
// exceeded the in-flight work is abandoned via context cancellation
// and its result, if any, discarded.
func (p *Processor) renderAndUpload(ctx context.Context, jobID, leadID string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	lead, err := p.leads.GetLead(timeoutCtx, leadID)
	if err != nil {
		return "", fmt.Errorf("load lead %s: %w", leadID, err)
	}

	teacher, err := p.catalog.GetTeacher(timeoutCtx, lead.TeacherID)
	if err != nil {
		return "", fmt.Errorf("load teacher %s: %w", lead.TeacherID, err)
	}

	modules, err := p.catalog.GetActiveModules(timeoutCtx, lead.TeacherID)
	if err != nil {
		return "", fmt.Errorf("load modules: %w", err)
	}

	content, err := p.renderer.Render(lead, teacher, modules)
	if err != nil {
		return "", err
	}
	if timeoutCtx.Err() != nil {
		return "", fmt.Errorf("render budget exceeded: %w", timeoutCtx.Err())
	}

	key := report.ObjectKey(lead.TeacherID, lead.ID, jobID)
	if _, err := p.store.Upload(timeoutCtx, key, content); err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	return key, nil
}
