package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/cache"
	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/llm"
	"github.com/Vinsen2024/lead-funnel-back/internal/report"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type countingGenerator struct {
	calls  int
	result llm.SummaryResult
	err    error
}

func (g *countingGenerator) GenerateSummaries(_ context.Context, input llm.SummaryInput) (llm.SummaryResult, error) {
	g.calls++
	if g.err != nil {
		return llm.SummaryResult{}, g.err
	}
	if g.result.LeaderSummary != "" {
		return g.result, nil
	}
	return llm.DefaultResult(input.Intent), nil
}

type recordingNotifier struct {
	leads []*domain.Lead
}

func (n *recordingNotifier) NotifyNewLead(_ context.Context, lead *domain.Lead) {
	n.leads = append(n.leads, lead)
}

type leadsFixture struct {
	service   *LeadsService
	leads     *repository.MemoryLeadsRepository
	catalog   *repository.MemoryCatalogRepository
	generator *countingGenerator
	notifier  *recordingNotifier
}

func newLeadsFixture(t *testing.T, moduleCount int) *leadsFixture {
	t.Helper()

	fixture := &leadsFixture{
		leads:     repository.NewMemoryLeadsRepository(),
		catalog:   repository.NewMemoryCatalogRepository(),
		generator: &countingGenerator{},
		notifier:  &recordingNotifier{},
	}
	fixture.catalog.PutTeacher(&domain.Teacher{ID: "teacher-1", Name: "王老师", IsActive: true})
	for i := 0; i < moduleCount; i++ {
		fixture.catalog.PutModule(domain.TeacherModule{
			ID:        string(rune('a' + i)),
			TeacherID: "teacher-1",
			Title:     "模块",
			SortOrder: i + 1,
			IsActive:  true,
		})
	}

	summaryCache := cache.NewSummaryCache(cache.Config{TTL: time.Minute, MaxEntries: 100})
	fixture.service = NewLeadsService(
		fixture.leads, fixture.catalog, fixture.generator, summaryCache,
		fixture.notifier, log.New(io.Discard, "", 0),
	)
	return fixture
}

func TestCreateLeadHighCoverageHasNoGapNote(t *testing.T) {
	fixture := newLeadsFixture(t, 3)
	fixture.generator.result = llm.SummaryResult{
		LeaderSummary:  "高层摘要",
		TeacherSummary: "讲师摘要",
		CoverageScore:  0.8,
	}

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if strings.Contains(lead.TeacherSummary, "缺口提醒") {
		t.Fatalf("expected no gap note for high coverage, got %q", lead.TeacherSummary)
	}
}

func TestCreateLeadLowCoverageAppendsGapNote(t *testing.T) {
	fixture := newLeadsFixture(t, 3)
	fixture.generator.result = llm.SummaryResult{
		LeaderSummary:  "高层摘要",
		TeacherSummary: "讲师摘要",
		CoverageScore:  0.4,
	}

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if !strings.Contains(lead.TeacherSummary, "缺口提醒") {
		t.Fatalf("expected gap note for low coverage, got %q", lead.TeacherSummary)
	}
}

func TestCreateLeadCoverageAtThresholdHasNoGapNote(t *testing.T) {
	fixture := newLeadsFixture(t, 3)
	fixture.generator.result = llm.SummaryResult{
		LeaderSummary:  "高层摘要",
		TeacherSummary: "讲师摘要",
		CoverageScore:  report.CoverageGapThreshold,
	}

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if strings.Contains(lead.TeacherSummary, "缺口提醒") {
		t.Fatalf("expected no gap note exactly at the threshold, got %q", lead.TeacherSummary)
	}
}

func TestCreateLeadFewModulesAppendsGapNote(t *testing.T) {
	fixture := newLeadsFixture(t, 1)
	fixture.generator.result = llm.SummaryResult{
		LeaderSummary:  "高层摘要",
		TeacherSummary: "讲师摘要",
		CoverageScore:  0.9,
	}

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if !strings.Contains(lead.TeacherSummary, "缺口提醒") {
		t.Fatalf("expected gap note when teacher has a single module")
	}
}

func TestCreateLeadSnapshotsAttribution(t *testing.T) {
	fixture := newLeadsFixture(t, 3)

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
		Attribution: &domain.BoundAttribution{
			BrokerID: "broker-1",
			ShareID:  "share-1",
		},
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}
	if lead.BrokerID != "broker-1" || lead.ShareID != "share-1" {
		t.Fatalf("expected attribution snapshot, got broker=%q share=%q", lead.BrokerID, lead.ShareID)
	}

	if len(fixture.notifier.leads) != 1 {
		t.Fatalf("expected one notification, got %d", len(fixture.notifier.leads))
	}
	if fixture.notifier.leads[0].ID != lead.ID {
		t.Fatalf("expected notification for lead %s", lead.ID)
	}
}

func TestCreateLeadGeneratorFailureUsesDefaults(t *testing.T) {
	fixture := newLeadsFixture(t, 3)
	fixture.generator.err = errors.New("model unavailable")

	lead, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-1",
		Intent:    "领导力培训",
	})
	if err != nil {
		t.Fatalf("expected lead creation to survive generator failure, got %v", err)
	}
	if strings.TrimSpace(lead.LeaderSummary) == "" {
		t.Fatalf("expected default leader summary")
	}
	if len(lead.ClarifyingQuestions) != 5 {
		t.Fatalf("expected 5 default clarifying questions, got %d", len(lead.ClarifyingQuestions))
	}
	if lead.CoverageScore != 0.5 {
		t.Fatalf("expected default coverage 0.5, got %v", lead.CoverageScore)
	}
}

func TestCreateLeadDuplicateInputHitsSummaryCache(t *testing.T) {
	fixture := newLeadsFixture(t, 3)
	fixture.generator.result = llm.SummaryResult{
		LeaderSummary:  "高层摘要",
		TeacherSummary: "讲师摘要",
		CoverageScore:  0.8,
	}

	request := LeadRequest{TeacherID: "teacher-1", Intent: "领导力培训"}
	if _, err := fixture.service.Create(context.Background(), "visitor-1", request); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := fixture.service.Create(context.Background(), "visitor-2", request); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if fixture.generator.calls != 1 {
		t.Fatalf("expected one generator call for identical input, got %d", fixture.generator.calls)
	}
}

func TestCreateLeadUnknownTeacher(t *testing.T) {
	fixture := newLeadsFixture(t, 3)

	_, err := fixture.service.Create(context.Background(), "visitor-1", LeadRequest{
		TeacherID: "teacher-missing",
		Intent:    "领导力培训",
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusRejectsInvalidValue(t *testing.T) {
	fixture := newLeadsFixture(t, 3)

	if err := fixture.service.UpdateStatus(context.Background(), "lead-1", "ARCHIVED"); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestListForBrokerFiltersByBroker(t *testing.T) {
	fixture := newLeadsFixture(t, 3)

	for _, broker := range []string{"broker-1", "broker-1", "broker-2"} {
		attribution := &domain.BoundAttribution{BrokerID: broker, ShareID: "share-x"}
		if _, err := fixture.service.Create(context.Background(), "visitor", LeadRequest{
			TeacherID:   "teacher-1",
			Intent:      "领导力培训-" + broker,
			Attribution: attribution,
		}); err != nil {
			t.Fatalf("seed lead: %v", err)
		}
	}

	items, total, err := fixture.service.ListForBroker(context.Background(), "broker-1", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 leads for broker-1, got total=%d len=%d", total, len(items))
	}
}
