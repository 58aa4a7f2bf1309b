package repository

import (
	"context"
	"fmt"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBindingsRepository relies on the UNIQUE (visitor_id,
// teacher_id) constraint: the upsert is a single atomic statement, so
// concurrent resolutions for the same pair can never create duplicate
// rows.
type PostgresBindingsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresBindingsRepository(pool *pgxpool.Pool) *PostgresBindingsRepository {
	return &PostgresBindingsRepository{pool: pool}
}

func (r *PostgresBindingsRepository) GetBinding(ctx context.Context, visitorID, teacherID string) (*domain.VisitorBinding, error) {
	var binding domain.VisitorBinding
	err := r.pool.QueryRow(ctx, `
		SELECT visitor_id, teacher_id, broker_id, last_share_id, last_bound_at, expires_at
		FROM visitor_bindings
		WHERE visitor_id = $1 AND teacher_id = $2
	`, visitorID, teacherID).Scan(
		&binding.VisitorID,
		&binding.TeacherID,
		&binding.BrokerID,
		&binding.LastShareID,
		&binding.LastBoundAt,
		&binding.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query binding: %w", err)
	}
	return &binding, nil
}

func (r *PostgresBindingsRepository) UpsertBinding(ctx context.Context, binding *domain.VisitorBinding) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO visitor_bindings (visitor_id, teacher_id, broker_id, last_share_id, last_bound_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (visitor_id, teacher_id) DO UPDATE
		SET broker_id = EXCLUDED.broker_id,
			last_share_id = EXCLUDED.last_share_id,
			last_bound_at = EXCLUDED.last_bound_at,
			expires_at = EXCLUDED.expires_at
	`,
		binding.VisitorID,
		binding.TeacherID,
		binding.BrokerID,
		binding.LastShareID,
		binding.LastBoundAt,
		binding.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}
