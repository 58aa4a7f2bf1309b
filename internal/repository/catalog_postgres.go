package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresCatalogRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalogRepository(pool *pgxpool.Pool) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{pool: pool}
}

func (r *PostgresCatalogRepository) GetTeacher(ctx context.Context, teacherID string) (*domain.Teacher, error) {
	var (
		teacher domain.Teacher
		contact []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, wx_openid, name, avatar, title, bio, contact_info, is_active, created_at
		FROM teachers
		WHERE id = $1
	`, teacherID).Scan(
		&teacher.ID,
		&teacher.WxOpenID,
		&teacher.Name,
		&teacher.Avatar,
		&teacher.Title,
		&teacher.Bio,
		&contact,
		&teacher.IsActive,
		&teacher.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query teacher: %w", err)
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &teacher.ContactInfo); err != nil {
			return nil, fmt.Errorf("decode teacher contact: %w", err)
		}
	}
	return &teacher, nil
}

func (r *PostgresCatalogRepository) GetActiveModules(ctx context.Context, teacherID string) ([]domain.TeacherModule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, teacher_id, title, description, tags, sort_order, is_active
		FROM teacher_modules
		WHERE teacher_id = $1 AND is_active
		ORDER BY sort_order ASC
	`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	defer rows.Close()

	items := make([]domain.TeacherModule, 0)
	for rows.Next() {
		var (
			module domain.TeacherModule
			tags   []byte
		)
		if err := rows.Scan(&module.ID, &module.TeacherID, &module.Title, &module.Description, &tags, &module.SortOrder, &module.IsActive); err != nil {
			return nil, fmt.Errorf("scan module: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &module.Tags); err != nil {
				return nil, fmt.Errorf("decode module tags: %w", err)
			}
		}
		items = append(items, module)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate modules: %w", rows.Err())
	}
	return items, nil
}

func (r *PostgresCatalogRepository) GetBroker(ctx context.Context, brokerID string) (*domain.Broker, error) {
	var (
		broker  domain.Broker
		contact []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, wx_openid, name, avatar, title, contact_info, is_active, created_at
		FROM brokers
		WHERE id = $1
	`, brokerID).Scan(
		&broker.ID,
		&broker.WxOpenID,
		&broker.Name,
		&broker.Avatar,
		&broker.Title,
		&contact,
		&broker.IsActive,
		&broker.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query broker: %w", err)
	}
	if len(contact) > 0 {
		if err := json.Unmarshal(contact, &broker.ContactInfo); err != nil {
			return nil, fmt.Errorf("decode broker contact: %w", err)
		}
	}
	return &broker, nil
}
