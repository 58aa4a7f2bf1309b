package domain

import "time"

type ExportJobType string

const (
	ExportTypeMatchReport ExportJobType = "MATCH_REPORT"
)

type ExportJobStatus string

const (
	ExportStatusPending   ExportJobStatus = "PENDING"
	ExportStatusRunning   ExportJobStatus = "RUNNING"
	ExportStatusSucceeded ExportJobStatus = "SUCCEEDED"
	ExportStatusFailed    ExportJobStatus = "FAILED"
)

// ExportJob is one asynchronous report generation for a lead.
// Lifecycle: PENDING -> RUNNING -> SUCCEEDED | FAILED. A FAILED job
// may re-enter RUNNING when the queue redelivers the work item; the
// queue's attempt cap is the backstop against infinite retry.
type ExportJob struct {
	ID           string
	LeadID       string
	Type         ExportJobType
	Status       ExportJobStatus
	ResultKey    string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExportTask is the transport format carried on the export queue.
type ExportTask struct {
	JobID       string    `json:"job_id"`
	LeadID      string    `json:"lead_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
