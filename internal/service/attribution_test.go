package service

import (
	"context"
	"io"
	"log"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

type attributionFixture struct {
	service  *AttributionService
	shares   *repository.MemorySharesRepository
	bindings *repository.MemoryBindingsRepository
	catalog  *repository.MemoryCatalogRepository
	now      time.Time
}

func newAttributionFixture(t *testing.T) *attributionFixture {
	t.Helper()

	fixture := &attributionFixture{
		shares:   repository.NewMemorySharesRepository(),
		bindings: repository.NewMemoryBindingsRepository(),
		catalog:  repository.NewMemoryCatalogRepository(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fixture.catalog.PutBroker(&domain.Broker{ID: "broker-a", Name: "经纪A", IsActive: true})
	fixture.catalog.PutBroker(&domain.Broker{ID: "broker-b", Name: "经纪B", IsActive: true})

	logger := log.New(io.Discard, "", 0)
	fixture.service = NewAttributionService(fixture.shares, fixture.bindings, fixture.catalog, logger)
	fixture.service.now = func() time.Time { return fixture.now }
	return fixture
}

func (f *attributionFixture) addShare(t *testing.T, shareID, brokerID string, expiresAt *time.Time, active bool) {
	t.Helper()
	share := &domain.Share{
		ShareID:   shareID,
		TeacherID: "teacher-1",
		BrokerID:  brokerID,
		IsActive:  active,
		ExpiresAt: expiresAt,
		CreatedAt: f.now,
	}
	if err := f.shares.CreateShare(context.Background(), share); err != nil {
		t.Fatalf("create share: %v", err)
	}
}

func TestResolveValidShareBindsVisitor(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)

	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Bound == nil {
		t.Fatalf("expected attribution, got none")
	}
	if result.Bound.BrokerID != "broker-a" {
		t.Fatalf("expected broker-a, got %s", result.Bound.BrokerID)
	}
	wantExpiry := fixture.now.Add(BindingWindow)
	if !result.Bound.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expected expiry %v, got %v", wantExpiry, result.Bound.ExpiresAt)
	}
	if result.BrokerInfo == nil || result.BrokerInfo.ID != "broker-a" {
		t.Fatalf("expected broker card for broker-a, got %+v", result.BrokerInfo)
	}
}

func TestResolveLaterShareRebindsToNewBroker(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)
	fixture.addShare(t, "share-b", "broker-b", nil, true)

	if _, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	fixture.now = fixture.now.Add(48 * time.Hour)
	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-b")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if result.Bound == nil || result.Bound.BrokerID != "broker-b" {
		t.Fatalf("expected rebind to broker-b, got %+v", result.Bound)
	}
	if fixture.bindings.Len() != 1 {
		t.Fatalf("expected a single binding row, got %d", fixture.bindings.Len())
	}
}

func TestResolveNoShareFallsBackToLiveBinding(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)

	if _, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a"); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	fixture.now = fixture.now.Add(10 * 24 * time.Hour)
	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Bound == nil || result.Bound.BrokerID != "broker-a" {
		t.Fatalf("expected live binding to broker-a, got %+v", result.Bound)
	}
}

func TestResolveExpiredBindingReturnsNoAttribution(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)

	if _, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a"); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	fixture.now = fixture.now.Add(BindingWindow)
	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Bound != nil {
		t.Fatalf("expected no attribution after window, got %+v", result.Bound)
	}
}

func TestResolveExpiredShareBehavesLikeNoShare(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)

	past := fixture.now.Add(-time.Hour)
	fixture.addShare(t, "share-expired", "broker-b", &past, true)

	if _, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a"); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}

	// Expired share must not rebind; the live binding survives.
	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-expired")
	if err != nil {
		t.Fatalf("resolve with expired share: %v", err)
	}
	if result.Bound == nil || result.Bound.BrokerID != "broker-a" {
		t.Fatalf("expected broker-a binding to survive expired share, got %+v", result.Bound)
	}

	// For a fresh visitor an expired share yields no attribution.
	fresh, err := fixture.service.Resolve(context.Background(), "visitor-2", "teacher-1", "share-expired")
	if err != nil {
		t.Fatalf("resolve fresh visitor: %v", err)
	}
	if fresh.Bound != nil {
		t.Fatalf("expected no attribution from expired share, got %+v", fresh.Bound)
	}
}

func TestResolveInactiveShareIsIgnored(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-off", "broker-a", nil, false)

	result, err := fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-off")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.Bound != nil {
		t.Fatalf("expected no attribution from inactive share, got %+v", result.Bound)
	}
}

func TestResolveConcurrentCallsKeepSingleBinding(t *testing.T) {
	fixture := newAttributionFixture(t)
	fixture.addShare(t, "share-a", "broker-a", nil, true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = fixture.service.Resolve(context.Background(), "visitor-1", "teacher-1", "share-a")
		}()
	}
	wg.Wait()

	if fixture.bindings.Len() != 1 {
		t.Fatalf("expected one binding row after concurrent resolves, got %d", fixture.bindings.Len())
	}
}

func TestDecodeScene(t *testing.T) {
	cases := []struct {
		name  string
		scene string
		want  string
	}{
		{name: "plain share id", scene: "abc123", want: "abc123"},
		{name: "scene fragment", scene: "s=abc123", want: "abc123"},
		{name: "url encoded", scene: url.QueryEscape("s=abc123"), want: "abc123"},
		{name: "share id among params", scene: "c=xx&s=abc123", want: "abc123"},
		{name: "trailing params", scene: "s=abc123&c=xx", want: "abc123"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := decodeScene(tc.scene); got != tc.want {
				t.Fatalf("decodeScene(%q) = %q, want %q", tc.scene, got, tc.want)
			}
		})
	}
}
