package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSharesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSharesRepository(pool *pgxpool.Pool) *PostgresSharesRepository {
	return &PostgresSharesRepository{pool: pool}
}

func (r *PostgresSharesRepository) CreateShare(ctx context.Context, share *domain.Share) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shares (share_id, teacher_id, broker_id, is_active, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, share.ShareID, share.TeacherID, share.BrokerID, share.IsActive, share.ExpiresAt, share.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (r *PostgresSharesRepository) GetShare(ctx context.Context, shareID string) (*domain.Share, error) {
	return r.scanShare(ctx, `
		SELECT share_id, teacher_id, broker_id, is_active, expires_at, created_at
		FROM shares
		WHERE share_id = $1
	`, shareID)
}

func (r *PostgresSharesRepository) FindActiveShare(ctx context.Context, brokerID, teacherID string) (*domain.Share, error) {
	return r.scanShare(ctx, `
		SELECT share_id, teacher_id, broker_id, is_active, expires_at, created_at
		FROM shares
		WHERE broker_id = $1 AND teacher_id = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, brokerID, teacherID)
}

func (r *PostgresSharesRepository) ListBrokerShares(ctx context.Context, brokerID string) ([]domain.Share, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT share_id, teacher_id, broker_id, is_active, expires_at, created_at
		FROM shares
		WHERE broker_id = $1 AND is_active
		ORDER BY created_at DESC
	`, brokerID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Share, 0)
	for rows.Next() {
		var (
			share     domain.Share
			expiresAt *time.Time
		)
		if err := rows.Scan(&share.ShareID, &share.TeacherID, &share.BrokerID, &share.IsActive, &expiresAt, &share.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		share.ExpiresAt = expiresAt
		items = append(items, share)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate shares: %w", rows.Err())
	}
	return items, nil
}

func (r *PostgresSharesRepository) DeactivateShare(ctx context.Context, shareID string) error {
	command, err := r.pool.Exec(ctx, `UPDATE shares SET is_active = FALSE WHERE share_id = $1`, shareID)
	if err != nil {
		return fmt.Errorf("deactivate share: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresSharesRepository) scanShare(ctx context.Context, query string, args ...any) (*domain.Share, error) {
	var (
		share     domain.Share
		expiresAt *time.Time
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&share.ShareID,
		&share.TeacherID,
		&share.BrokerID,
		&share.IsActive,
		&expiresAt,
		&share.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query share: %w", err)
	}
	share.ExpiresAt = expiresAt
	return &share, nil
}
