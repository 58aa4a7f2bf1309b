package service

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

func newSharesFixture(t *testing.T) (*SharesService, *repository.MemorySharesRepository) {
	t.Helper()

	shares := repository.NewMemorySharesRepository()
	catalog := repository.NewMemoryCatalogRepository()
	catalog.PutBroker(&domain.Broker{ID: "broker-1", Name: "李经纪", IsActive: true})
	catalog.PutTeacher(&domain.Teacher{ID: "teacher-1", Name: "王老师", IsActive: true})

	service := NewSharesService(shares, catalog, log.New(io.Discard, "", 0))
	return service, shares
}

func TestCreateShareMintsLink(t *testing.T) {
	service, _ := newSharesFixture(t)

	link, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("create share: %v", err)
	}
	if len(link.ShareID) != 16 {
		t.Fatalf("expected 16-char share id, got %q", link.ShareID)
	}
	if !strings.Contains(link.Path, "share_id="+link.ShareID) {
		t.Fatalf("expected path to carry the share id, got %q", link.Path)
	}
	if link.Scene != "s="+link.ShareID {
		t.Fatalf("expected scene fragment, got %q", link.Scene)
	}
	if link.ExpiresAt == nil {
		t.Fatalf("expected expiry on the minted share")
	}
}

func TestCreateShareReusesActiveLink(t *testing.T) {
	service, _ := newSharesFixture(t)

	first, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ShareID != second.ShareID {
		t.Fatalf("expected reuse of share %s, got %s", first.ShareID, second.ShareID)
	}
}

func TestCreateShareMintsNewAfterExpiry(t *testing.T) {
	service, _ := newSharesFixture(t)

	first, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	service.now = func() time.Time {
		return time.Now().UTC().Add(ShareExpiry + time.Hour)
	}
	second, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ShareID == second.ShareID {
		t.Fatalf("expected a fresh share after expiry, got reuse of %s", first.ShareID)
	}
}

func TestCreateShareMintsNewAfterDeactivation(t *testing.T) {
	service, shares := newSharesFixture(t)

	first, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := shares.DeactivateShare(context.Background(), first.ShareID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	second, err := service.CreateOrReuseShare(context.Background(), "broker-1", "teacher-1")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if first.ShareID == second.ShareID {
		t.Fatalf("expected a fresh share after deactivation")
	}
}

func TestCreateShareUnknownBroker(t *testing.T) {
	service, _ := newSharesFixture(t)

	_, err := service.CreateOrReuseShare(context.Background(), "broker-missing", "teacher-1")
	if err == nil {
		t.Fatalf("expected error for unknown broker")
	}
}
