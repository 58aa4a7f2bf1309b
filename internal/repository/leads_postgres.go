package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresLeadsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLeadsRepository(pool *pgxpool.Pool) *PostgresLeadsRepository {
	return &PostgresLeadsRepository{pool: pool}
}

func (r *PostgresLeadsRepository) CreateLead(ctx context.Context, lead *domain.Lead) error {
	questions, err := json.Marshal(lead.ClarifyingQuestions)
	if err != nil {
		return fmt.Errorf("encode clarifying questions: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (
			id,
			visitor_id,
			teacher_id,
			broker_id,
			share_id,
			intent,
			input,
			leader_summary,
			teacher_summary,
			clarifying_questions,
			coverage_score,
			status,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		lead.ID,
		lead.VisitorID,
		lead.TeacherID,
		lead.BrokerID,
		lead.ShareID,
		lead.Intent,
		lead.Input,
		lead.LeaderSummary,
		lead.TeacherSummary,
		questions,
		lead.CoverageScore,
		string(lead.Status),
		lead.CreatedAt,
		lead.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (r *PostgresLeadsRepository) GetLead(ctx context.Context, leadID string) (*domain.Lead, error) {
	var (
		lead      domain.Lead
		input     []byte
		questions []byte
		status    string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, visitor_id, teacher_id, broker_id, share_id, intent, input,
			leader_summary, teacher_summary, clarifying_questions, coverage_score,
			status, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, leadID).Scan(
		&lead.ID,
		&lead.VisitorID,
		&lead.TeacherID,
		&lead.BrokerID,
		&lead.ShareID,
		&lead.Intent,
		&input,
		&lead.LeaderSummary,
		&lead.TeacherSummary,
		&questions,
		&lead.CoverageScore,
		&status,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query lead: %w", err)
	}

	lead.Input = json.RawMessage(input)
	lead.Status = domain.LeadStatus(status)
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &lead.ClarifyingQuestions); err != nil {
			return nil, fmt.Errorf("decode clarifying questions: %w", err)
		}
	}
	return &lead, nil
}

func (r *PostgresLeadsRepository) ListLeads(ctx context.Context, filter domain.LeadListFilter) ([]domain.LeadListItem, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	baseQuery, args := buildLeadFilters(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	listQuery := fmt.Sprintf(
		`SELECT id, intent, leader_summary, status, created_at
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		baseQuery,
		len(args)+1,
		len(args)+2,
	)
	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := r.pool.Query(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LeadListItem, 0)
	for rows.Next() {
		var (
			item      domain.LeadListItem
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&item.ID, &item.Intent, &item.LeaderSummary, &status, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan lead item: %w", err)
		}
		item.Status = domain.LeadStatus(status)
		item.CreatedAt = createdAt
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, 0, fmt.Errorf("iterate lead items: %w", rows.Err())
	}
	return items, total, nil
}

func (r *PostgresLeadsRepository) UpdateLeadStatus(ctx context.Context, leadID string, status domain.LeadStatus) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1
	`, leadID, string(status))
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildLeadFilters(filter domain.LeadListFilter) (string, []any) {
	query := strings.Builder{}
	query.WriteString("FROM leads WHERE 1=1")

	args := make([]any, 0, 2)
	argIndex := 1

	if teacherID := strings.TrimSpace(filter.TeacherID); teacherID != "" {
		query.WriteString(fmt.Sprintf(" AND teacher_id = $%d", argIndex))
		args = append(args, teacherID)
		argIndex++
	}
	if brokerID := strings.TrimSpace(filter.BrokerID); brokerID != "" {
		query.WriteString(fmt.Sprintf(" AND broker_id = $%d", argIndex))
		args = append(args, brokerID)
		argIndex++
	}

	return query.String(), args
}
