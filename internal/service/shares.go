package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
	"github.com/google/uuid"
)

// ShareExpiry is the validity window of a share link itself, distinct
// from the binding window it seeds.
const ShareExpiry = 90 * 24 * time.Hour

type ShareLink struct {
	ShareID   string
	Path      string
	Scene     string
	ExpiresAt *time.Time
}

type SharesService struct {
	shares  repository.SharesRepository
	catalog repository.CatalogRepository
	logger  *log.Logger

	now func() time.Time
}

func NewSharesService(
	shares repository.SharesRepository,
	catalog repository.CatalogRepository,
	logger *log.Logger,
) *SharesService {
	return &SharesService{
		shares:  shares,
		catalog: catalog,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrReuseShare returns the broker's existing active share for
// the teacher when one is still unexpired, otherwise mints a new one.
// Reuse keeps one live link per (broker, teacher) pair.
func (s *SharesService) CreateOrReuseShare(ctx context.Context, brokerID, teacherID string) (ShareLink, error) {
	if _, err := s.catalog.GetBroker(ctx, brokerID); err != nil {
		return ShareLink{}, fmt.Errorf("broker %s: %w", brokerID, err)
	}
	if _, err := s.catalog.GetTeacher(ctx, teacherID); err != nil {
		return ShareLink{}, fmt.Errorf("teacher %s: %w", teacherID, err)
	}

	now := s.now()
	existing, err := s.shares.FindActiveShare(ctx, brokerID, teacherID)
	if err == nil && existing.Usable(now) {
		return shareLink(existing, teacherID), nil
	}

	share := &domain.Share{
		ShareID:   newShareID(),
		TeacherID: teacherID,
		BrokerID:  brokerID,
		IsActive:  true,
		CreatedAt: now,
	}
	expiresAt := now.Add(ShareExpiry)
	share.ExpiresAt = &expiresAt

	if err := s.shares.CreateShare(ctx, share); err != nil {
		return ShareLink{}, fmt.Errorf("create share: %w", err)
	}
	if s.logger != nil {
		s.logger.Printf("share created share_id=%s broker=%s teacher=%s", share.ShareID, brokerID, teacherID)
	}
	return shareLink(share, teacherID), nil
}

func (s *SharesService) ListShares(ctx context.Context, brokerID string) ([]domain.Share, error) {
	return s.shares.ListBrokerShares(ctx, brokerID)
}

func shareLink(share *domain.Share, teacherID string) ShareLink {
	return ShareLink{
		ShareID:   share.ShareID,
		Path:      fmt.Sprintf("/pages/teacher/home?teacherId=%s&share_id=%s", teacherID, share.ShareID),
		Scene:     "s=" + share.ShareID,
		ExpiresAt: share.ExpiresAt,
	}
}

// newShareID mints a short URL-safe identifier: a uuid with the
// dashes stripped, truncated to 16 characters.
func newShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
