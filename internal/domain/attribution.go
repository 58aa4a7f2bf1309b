package domain

import "time"

// Share is a broker-issued, teacher-scoped link that seeds attribution.
// Immutable after creation except for the active flag.
type Share struct {
	ShareID   string
	TeacherID string
	BrokerID  string
	IsActive  bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the share may still seed a binding.
func (s *Share) Usable(now time.Time) bool {
	if s == nil || !s.IsActive {
		return false
	}
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return false
	}
	return true
}

// VisitorBinding records which broker currently gets credit for a
// visitor on a teacher's page. At most one row per (visitor, teacher).
type VisitorBinding struct {
	VisitorID   string
	TeacherID   string
	BrokerID    string
	LastShareID string
	LastBoundAt time.Time
	ExpiresAt   time.Time
}

// BrokerCard is the denormalized broker contact block returned to
// visitor-facing flows.
type BrokerCard struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Avatar      string      `json:"avatar,omitempty"`
	ContactInfo ContactInfo `json:"contact_info"`
}

// AttributionResult is the outcome of a Resolve call. A nil Bound
// pointer means "no attribution": no valid share and no live binding.
type AttributionResult struct {
	Bound      *BoundAttribution
	BrokerInfo *BrokerCard
}

type BoundAttribution struct {
	BrokerID  string
	ShareID   string
	ExpiresAt time.Time
}
