package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/cache"
	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/llm"
	"github.com/Vinsen2024/lead-funnel-back/internal/report"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/google/uuid"
)

// gapNote is appended to the teacher summary when module coverage is
// too thin to promise a confident match.
const gapNote = "\n\n【缺口提醒】当前需求与讲师能力覆盖度较低，建议深入沟通以明确细节。"

const minModulesForConfidentMatch = 2

// LeadNotifier is notified after a lead is persisted; sends are best
// effort and must not fail intake.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, lead *domain.Lead)
}

type LeadRequest struct {
	TeacherID   string
	Intent      string
	Input       json.RawMessage
	Attribution *domain.BoundAttribution
}

type LeadSummary struct {
	LeadID              string
	LeaderSummary       string
	TeacherSummary      string
	ClarifyingQuestions []string
	CoverageScore       float64
	Status              domain.LeadStatus
}

type LeadsService struct {
	leads     repository.LeadsRepository
	catalog   repository.CatalogRepository
	generator llm.Generator
	summaries *cache.SummaryCache
	notifier  LeadNotifier
	logger    *log.Logger
}

func NewLeadsService(
	leads repository.LeadsRepository,
	catalog repository.CatalogRepository,
	generator llm.Generator,
	summaries *cache.SummaryCache,
	notifier LeadNotifier,
	logger *log.Logger,
) *LeadsService {
	return &LeadsService{
		leads:     leads,
		catalog:   catalog,
		generator: generator,
		summaries: summaries,
		notifier:  notifier,
		logger:    logger,
	}
}

// Create persists a submitted lead with its AI summaries and the
// attribution snapshot taken at submission time. The snapshot never
// changes afterwards, even if the visitor's binding is re-attributed.
func (s *LeadsService) Create(ctx context.Context, visitorID string, request LeadRequest) (*domain.Lead, error) {
	if _, err := s.catalog.GetTeacher(ctx, request.TeacherID); err != nil {
		return nil, fmt.Errorf("teacher %s: %w", request.TeacherID, err)
	}

	modules, err := s.catalog.GetActiveModules(ctx, request.TeacherID)
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}

	result := s.generateSummaries(ctx, request, modules)

	teacherSummary := result.TeacherSummary
	if len(modules) < minModulesForConfidentMatch || result.CoverageScore < report.CoverageGapThreshold {
		teacherSummary += gapNote
		if s.logger != nil {
			s.logger.Printf(
				"low coverage lead teacher=%s modules=%d score=%.2f",
				request.TeacherID, len(modules), result.CoverageScore,
			)
		}
	}

	now := time.Now().UTC()
	lead := &domain.Lead{
		ID:                  uuid.NewString(),
		VisitorID:           visitorID,
		TeacherID:           request.TeacherID,
		Intent:              request.Intent,
		Input:               request.Input,
		LeaderSummary:       result.LeaderSummary,
		TeacherSummary:      teacherSummary,
		ClarifyingQuestions: result.ClarifyingQuestions,
		CoverageScore:       result.CoverageScore,
		Status:              domain.LeadStatusNew,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if request.Attribution != nil {
		lead.BrokerID = request.Attribution.BrokerID
		lead.ShareID = request.Attribution.ShareID
	}

	if err := s.leads.CreateLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("lead created lead_id=%s teacher=%s broker=%s", lead.ID, lead.TeacherID, lead.BrokerID)
	}

	if s.notifier != nil {
		s.notifier.NotifyNewLead(ctx, lead)
	}
	return lead, nil
}

func (s *LeadsService) generateSummaries(
	ctx context.Context,
	request LeadRequest,
	modules []domain.TeacherModule,
) llm.SummaryResult {
	titles := make([]string, 0, len(modules))
	for _, module := range modules {
		titles = append(titles, module.Title)
	}

	var signature string
	if s.summaries != nil {
		parts := append([]string{request.Intent, string(request.Input)}, titles...)
		signature = s.summaries.BuildSignature(parts...)
		if cached, ok := s.summaries.Get(signature); ok {
			return cached
		}
	}

	result, err := s.generator.GenerateSummaries(ctx, llm.SummaryInput{
		Intent:  request.Intent,
		Input:   request.Input,
		Modules: modules,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("summary generation failed, using defaults: %v", err)
		}
		result = llm.DefaultResult(request.Intent)
	}

	if s.summaries != nil {
		s.summaries.Set(signature, result)
	}
	return result
}

func (s *LeadsService) GetSummary(ctx context.Context, leadID string) (LeadSummary, error) {
	lead, err := s.leads.GetLead(ctx, leadID)
	if err != nil {
		return LeadSummary{}, fmt.Errorf("lead %s: %w", leadID, err)
	}
	return LeadSummary{
		LeadID:              lead.ID,
		LeaderSummary:       lead.LeaderSummary,
		TeacherSummary:      lead.TeacherSummary,
		ClarifyingQuestions: lead.ClarifyingQuestions,
		CoverageScore:       lead.CoverageScore,
		Status:              lead.Status,
	}, nil
}

func (s *LeadsService) ListForTeacher(ctx context.Context, teacherID string, page, pageSize int) ([]domain.LeadListItem, int, error) {
	return s.leads.ListLeads(ctx, domain.LeadListFilter{TeacherID: teacherID, Page: page, PageSize: pageSize})
}

func (s *LeadsService) ListForBroker(ctx context.Context, brokerID string, page, pageSize int) ([]domain.LeadListItem, int, error) {
	return s.leads.ListLeads(ctx, domain.LeadListFilter{BrokerID: brokerID, Page: page, PageSize: pageSize})
}

func (s *LeadsService) UpdateStatus(ctx context.Context, leadID string, status domain.LeadStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid lead status: %s", status)
	}
	return s.leads.UpdateLeadStatus(ctx, leadID, status)
}
