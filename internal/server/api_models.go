package server

import (
	"time"

	"github.com/breakingcid/scand/internal/model"
)

// CreateScanRequest is the payload for requesting a new scan.
type CreateScanRequest struct {
	ScanType string `json:"scanType" example:"xss"`
	Target   string `json:"target" example:"https://example.com"`
	Scope    string `json:"scope,omitempty" example:"*.example.com"`
}

// CreateScanResponse acknowledges a created scan.
type CreateScanResponse struct {
	ScanID int64  `json:"scanId" example:"7"`
	Status string `json:"status" example:"pending"`
}

// JobPayload is what a worker receives when it claims a pending scan.
// CreatedAt is the scan's creation time, carried so worker-rendered reports
// date the scan correctly.
type JobPayload struct {
	ID        int64     `json:"id" example:"7"`
	ScanType  string    `json:"scanType" example:"ssrf"`
	Target    string    `json:"target" example:"https://example.com"`
	Scope     string    `json:"scope,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// PendingJobResponse wraps the claim result; Job is null when no pending
// scan exists.
type PendingJobResponse struct {
	Job *JobPayload `json:"job"`
}

// WorkerLogRequest is one streamed log line from a worker.
type WorkerLogRequest struct {
	Message string `json:"message" example:"[*] probing endpoint"`
	Level   string `json:"level,omitempty" example:"info"`
}

// WorkerReportPayload is an optional pre-rendered report in a results post.
type WorkerReportPayload struct {
	Content string        `json:"content"`
	Summary model.Summary `json:"summary"`
}

// WorkerResultsRequest is the terminal write for a remote job.
type WorkerResultsRequest struct {
	WorkerID        string               `json:"workerId"`
	Status          string               `json:"status" example:"completed"`
	Vulnerabilities []model.Finding      `json:"vulnerabilities"`
	Report          *WorkerReportPayload `json:"report,omitempty"`
	Duration        int64                `json:"duration" example:"42"`
}

// WorkerErrorRequest reports a failed remote job.
type WorkerErrorRequest struct {
	WorkerID string `json:"workerId"`
	Error    string `json:"error" example:"target unreachable"`
}

// SuccessResponse is the uniform acknowledgement for worker writes.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
