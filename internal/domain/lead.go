package domain

import (
	"encoding/json"
	"time"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusQualified LeadStatus = "QUALIFIED"
	LeadStatusClosed    LeadStatus = "CLOSED"
)

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusClosed:
		return true
	}
	return false
}

// Lead is a submitted visitor intent. BrokerID and ShareID are the
// attribution snapshot taken at creation time and never change, even
// if the visitor's binding is later re-attributed.
type Lead struct {
	ID                  string
	VisitorID           string
	TeacherID           string
	BrokerID            string
	ShareID             string
	Intent              string
	Input               json.RawMessage
	LeaderSummary       string
	TeacherSummary      string
	ClarifyingQuestions []string
	CoverageScore       float64
	Status              LeadStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type LeadListItem struct {
	ID            string
	Intent        string
	LeaderSummary string
	Status        LeadStatus
	CreatedAt     time.Time
}

type LeadListFilter struct {
	TeacherID string
	BrokerID  string
	Page      int
	PageSize  int
}
