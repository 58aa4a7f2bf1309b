package service

import (
	"context"
	"errors"
	"log"
	"net/url"
	"regexp"
	"time"

	"github.com/Vinsen2024/lead-funnel-back/internal/domain"
	"github.com/Vinsen2024/lead-funnel-back/internal/repository"
)

// BindingWindow is how long a resolved attribution stays authoritative
// without a fresh share. Only a new valid share resets it.
const BindingWindow = 30 * 24 * time.Hour

var sceneShareID = regexp.MustCompile(`s=([^&]+)`)

// AttributionService implements the last-click-within-window policy:
// a later valid share re-attributes the visitor, while an absent or
// expired share never erases a still-live prior binding.
type AttributionService struct {
	shares   repository.SharesRepository
	bindings repository.BindingsRepository
	catalog  repository.CatalogRepository
	logger   *log.Logger

	now func() time.Time
}

func NewAttributionService(
	shares repository.SharesRepository,
	bindings repository.BindingsRepository,
	catalog repository.CatalogRepository,
	logger *log.Logger,
) *AttributionService {
	return &AttributionService{
		shares:   shares,
		bindings: bindings,
		catalog:  catalog,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve decides which broker gets credit for the visitor on this
// teacher's page. The decision table:
//
//	valid share            -> upsert binding, return its broker
//	no share, live binding -> return the binding unchanged, no write
//	neither                -> no attribution
func (s *AttributionService) Resolve(
	ctx context.Context,
	visitorID, teacherID, shareOrScene string,
) (domain.AttributionResult, error) {
	now := s.now()

	var validShare *domain.Share
	if shareOrScene != "" {
		shareID := decodeScene(shareOrScene)
		validShare = s.validateShare(ctx, shareID, now)
	}

	if validShare != nil {
		binding := &domain.VisitorBinding{
			VisitorID:   visitorID,
			TeacherID:   teacherID,
			BrokerID:    validShare.BrokerID,
			LastShareID: validShare.ShareID,
			LastBoundAt: now,
			ExpiresAt:   now.Add(BindingWindow),
		}
		if err := s.bindings.UpsertBinding(ctx, binding); err != nil {
			return domain.AttributionResult{}, err
		}
		if s.logger != nil {
			s.logger.Printf(
				"attribution bound visitor=%s teacher=%s broker=%s share=%s",
				visitorID, teacherID, validShare.BrokerID, validShare.ShareID,
			)
		}
		return domain.AttributionResult{
			Bound: &domain.BoundAttribution{
				BrokerID:  binding.BrokerID,
				ShareID:   binding.LastShareID,
				ExpiresAt: binding.ExpiresAt,
			},
			BrokerInfo: s.brokerCard(ctx, binding.BrokerID),
		}, nil
	}

	existing, err := s.bindings.GetBinding(ctx, visitorID, teacherID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.AttributionResult{}, nil
		}
		return domain.AttributionResult{}, err
	}
	if !now.Before(existing.ExpiresAt) {
		return domain.AttributionResult{}, nil
	}

	return domain.AttributionResult{
		Bound: &domain.BoundAttribution{
			BrokerID:  existing.BrokerID,
			ShareID:   existing.LastShareID,
			ExpiresAt: existing.ExpiresAt,
		},
		BrokerInfo: s.brokerCard(ctx, existing.BrokerID),
	}, nil
}

// validateShare fails open: a missing, inactive, expired or unreadable
// share degrades to "no token supplied" rather than an error.
func (s *AttributionService) validateShare(ctx context.Context, shareID string, now time.Time) *domain.Share {
	if shareID == "" {
		return nil
	}

	share, err := s.shares.GetShare(ctx, shareID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && s.logger != nil {
			s.logger.Printf("share lookup failed, treating as invalid: %v", err)
		}
		return nil
	}
	if !share.Usable(now) {
		return nil
	}
	return share
}

func (s *AttributionService) brokerCard(ctx context.Context, brokerID string) *domain.BrokerCard {
	broker, err := s.catalog.GetBroker(ctx, brokerID)
	if err != nil {
		return nil
	}
	return broker.Card()
}

// decodeScene canonicalizes a mini-program scene token. Scenes may be
// URL-encoded and carry the share id as an "s=" fragment; anything
// that cannot be decoded is used as-is.
func decodeScene(scene string) string {
	decoded, err := url.QueryUnescape(scene)
	if err != nil {
		decoded = scene
	}
	if match := sceneShareID.FindStringSubmatch(decoded); match != nil {
		return match[1]
	}
	return decoded
}
