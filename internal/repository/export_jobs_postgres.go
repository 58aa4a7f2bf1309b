package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresExportJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresExportJobsRepository(pool *pgxpool.Pool) *PostgresExportJobsRepository {
	return &PostgresExportJobsRepository{pool: pool}
}

func (r *PostgresExportJobsRepository) CreateExportJob(ctx context.Context, job *domain.ExportJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO export_jobs (id, lead_id, type, status, result_key, error_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		job.ID,
		job.LeadID,
		string(job.Type),
		string(job.Status),
		job.ResultKey,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert export job: %w", err)
	}
	return nil
}

func (r *PostgresExportJobsRepository) GetExportJob(ctx context.Context, jobID string) (*domain.ExportJob, error) {
	var (
		job    domain.ExportJob
		kind   string
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, type, status, result_key, error_message, created_at, updated_at
		FROM export_jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&job.LeadID,
		&kind,
		&status,
		&job.ResultKey,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query export job: %w", err)
	}
	job.Type = domain.ExportJobType(kind)
	job.Status = domain.ExportJobStatus(status)
	return &job, nil
}

func (r *PostgresExportJobsRepository) UpdateExportJobStatus(
	ctx context.Context,
	jobID string,
	status domain.ExportJobStatus,
	resultKey, errorMessage string,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE export_jobs
		SET status = $2,
			result_key = $3,
			error_message = $4,
			updated_at = $5
		WHERE id = $1
	`, jobID, string(status), resultKey, errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
