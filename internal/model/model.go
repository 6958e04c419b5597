// Package model defines the persistent types shared by the orchestration
// core: scans, findings, reports and log entries, plus the sentinel errors
// every layer maps its failures onto.
package model

import (
	"errors"
	"time"
)

// ScanType enumerates the supported scanning techniques. The underscore
// forms are the wire format workers and clients exchange.
type ScanType string

const (
	ScanHTTPSmuggling ScanType = "http_smuggling"
	ScanSSRF          ScanType = "ssrf"
	ScanXSS           ScanType = "xss"
	ScanSubdomainEnum ScanType = "subdomain_enum"
	ScanComprehensive ScanType = "comprehensive"
)

// Techniques lists the concrete techniques a comprehensive scan fans out to,
// in the order their findings are merged.
func Techniques() []ScanType {
	return []ScanType{ScanHTTPSmuggling, ScanSSRF, ScanXSS, ScanSubdomainEnum}
}

func (t ScanType) Valid() bool {
	switch t {
	case ScanHTTPSmuggling, ScanSSRF, ScanXSS, ScanSubdomainEnum, ScanComprehensive:
		return true
	}
	return false
}

// ScanStatus is the scan state machine's state set. Transitions are
// one-directional: pending -> running -> {completed, failed}.
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
)

func (s ScanStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Severity orders finding impact: critical > high > medium > low > info.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// LogLevel classifies scan log lines.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// Scan is one tracked invocation of the scanning pipeline against a target.
type Scan struct {
	// ID is the opaque integer identity assigned by the store.
	ID int64 `json:"id"`

	// UserID references the owning user.
	UserID int64 `json:"userId"`

	// ScanType selects the technique (or "comprehensive" for all of them).
	ScanType ScanType `json:"scanType"`

	// Target is the URL under test.
	Target string `json:"target"`

	// Scope is optional free-text scoping notes.
	Scope string `json:"scope,omitempty"`

	// Status is the scan's position in the state machine.
	Status ScanStatus `json:"status"`

	// WorkerID identifies the remote worker that claimed the scan, if any.
	WorkerID string `json:"workerId,omitempty"`

	// WorkerPickedAt is when the claim was recorded.
	WorkerPickedAt *time.Time `json:"workerPickedAt,omitempty"`

	// CreatedAt is when the scan was requested.
	CreatedAt time.Time `json:"createdAt"`

	// CompletedAt is set exactly when the scan reaches a terminal status.
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Duration is wall-clock seconds from dispatch to terminal status.
	Duration *int64 `json:"duration,omitempty"`
}

// Finding is one discrete result reported for a scan. Immutable once stored.
type Finding struct {
	ID          int64     `json:"id"`
	ScanID      int64     `json:"scanId"`
	Type        string    `json:"type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Payload     string    `json:"payload,omitempty"`
	Evidence    string    `json:"evidence,omitempty"`
	Remediation string    `json:"remediation,omitempty"`
	CVSS        string    `json:"cvss,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Summary counts findings per severity. Total always equals the sum of the
// per-severity counts.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
}

// Report is the rendered, aggregated output for one completed scan.
// At most one report exists per scan.
type Report struct {
	ID        int64     `json:"id"`
	ScanID    int64     `json:"scanId"`
	Content   string    `json:"content"`
	Summary   Summary   `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogEntry is one line of progress output tied to a scan, ordered by
// timestamp within the scan.
type LogEntry struct {
	ID        int64     `json:"id"`
	ScanID    int64     `json:"scanId"`
	Message   string    `json:"message"`
	Level     LogLevel  `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Sentinel errors for the orchestration core. Callers wrap these with
// fmt.Errorf("...: %w", err) and branch with errors.Is.
var (
	// ErrInvalidInput marks malformed requests rejected before any mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized marks requests without a valid credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks access to another user's scan without admin role.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks references to a nonexistent scan.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidState marks a terminal write against a scan that is not in
	// the state the writer believed it to be in.
	ErrInvalidState = errors.New("scan not in expected state")

	// ErrScannerFailure marks an external scanner that failed or produced
	// output the result parser rejected.
	ErrScannerFailure = errors.New("scanner failure")
)
