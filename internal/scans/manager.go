// Package scans owns the scan lifecycle: creation, visibility rules, the
// status state machine and caller-facing aggregation. It is the single
// write path for scan status; both dispatch strategies funnel their
// transitions through it.
package scans

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/store"
)

// Manager validates requests and mediates all scan reads and writes.
type Manager struct {
	store  *store.Store
	logger logging.Logger
}

// NewManager ties the lifecycle rules to a store.
func NewManager(st *store.Store, logger logging.Logger) *Manager {
	return &Manager{store: st, logger: logger}
}

// Details bundles a scan with its findings and report, the shape clients
// read back for a single scan.
type Details struct {
	Scan            *model.Scan     `json:"scan"`
	Vulnerabilities []model.Finding `json:"vulnerabilities"`
	Report          *model.Report   `json:"report,omitempty"`
}

// Stats is the caller-scoped aggregation over scans and findings.
type Stats struct {
	Scans struct {
		Total     int `json:"total"`
		Pending   int `json:"pending"`
		Running   int `json:"running"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	} `json:"scans"`
	Vulnerabilities model.Summary `json:"vulnerabilities"`
}

// validTarget accepts absolute http/https URLs with a host.
func validTarget(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Create validates and persists a new scan in pending status. Dispatch is
// deliberately the caller's responsibility so creation stays idempotent and
// side-effect-light.
func (m *Manager) Create(ctx context.Context, userID int64, scanType model.ScanType, target, scope string) (*model.Scan, error) {
	if !scanType.Valid() {
		return nil, fmt.Errorf("unknown scan type %q: %w", scanType, model.ErrInvalidInput)
	}
	if !validTarget(target) {
		return nil, fmt.Errorf("target %q is not a valid URL: %w", target, model.ErrInvalidInput)
	}

	sc, err := m.store.CreateScan(ctx, userID, scanType, target, scope)
	if err != nil {
		return nil, err
	}
	m.logger.Info("scan created",
		logging.Field{Key: "scan_id", Value: sc.ID},
		logging.Field{Key: "scan_type", Value: string(scanType)},
		logging.Field{Key: "target", Value: target})
	return sc, nil
}

// Get returns a scan with its findings and report. Non-admin callers may
// only read their own scans.
func (m *Manager) Get(ctx context.Context, scanID, userID int64, admin bool) (*Details, error) {
	sc, err := m.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if !admin && sc.UserID != userID {
		return nil, fmt.Errorf("scan %d belongs to another user: %w", scanID, model.ErrForbidden)
	}

	findings, err := m.store.FindingsByScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	rep, err := m.store.ReportByScan(ctx, scanID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	return &Details{Scan: sc, Vulnerabilities: findings, Report: rep}, nil
}

// List returns the scans visible to the caller, newest first.
func (m *Manager) List(ctx context.Context, userID int64, admin bool) ([]model.Scan, error) {
	return m.store.ListScans(ctx, userID, admin)
}

// Transition moves a scan along the state machine. This is the only status
// write path; concurrent writers serialize on the store's guarded update.
func (m *Manager) Transition(ctx context.Context, scanID int64, to model.ScanStatus, completedAt *time.Time, duration *int64) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q: %w", to, model.ErrInvalidInput)
	}
	if err := m.store.TransitionStatus(ctx, scanID, to, completedAt, duration); err != nil {
		return err
	}
	m.logger.Info("scan status changed",
		logging.Field{Key: "scan_id", Value: scanID},
		logging.Field{Key: "status", Value: string(to)})
	return nil
}

// ComputeStats aggregates per-status scan counts and, over completed scans
// only, per-severity finding counts for everything the caller can see.
func (m *Manager) ComputeStats(ctx context.Context, userID int64, admin bool) (*Stats, error) {
	counts, err := m.store.StatusCounts(ctx, userID, admin)
	if err != nil {
		return nil, err
	}
	sum, err := m.store.SeverityCounts(ctx, userID, admin)
	if err != nil {
		return nil, err
	}

	var st Stats
	st.Scans.Pending = counts[model.StatusPending]
	st.Scans.Running = counts[model.StatusRunning]
	st.Scans.Completed = counts[model.StatusCompleted]
	st.Scans.Failed = counts[model.StatusFailed]
	st.Scans.Total = st.Scans.Pending + st.Scans.Running + st.Scans.Completed + st.Scans.Failed
	st.Vulnerabilities = sum
	return &st, nil
}
