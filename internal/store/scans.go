package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
)

const scanColumns = `id, user_id, scan_type, target, scope, status,
       worker_id, worker_picked_at, created_at, completed_at, duration`

func scanRow(row interface{ Scan(...any) error }) (*model.Scan, error) {
	var (
		sc             model.Scan
		scope          sql.NullString
		workerID       sql.NullString
		workerPickedAt sql.NullInt64
		createdAt      int64
		completedAt    sql.NullInt64
		duration       sql.NullInt64
	)
	err := row.Scan(&sc.ID, &sc.UserID, &sc.ScanType, &sc.Target, &scope, &sc.Status,
		&workerID, &workerPickedAt, &createdAt, &completedAt, &duration)
	if err != nil {
		return nil, err
	}
	sc.Scope = scope.String
	sc.WorkerID = workerID.String
	if workerPickedAt.Valid {
		t := time.UnixMilli(workerPickedAt.Int64).UTC()
		sc.WorkerPickedAt = &t
	}
	sc.CreatedAt = time.UnixMilli(createdAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		sc.CompletedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		sc.Duration = &d
	}
	return &sc, nil
}

// CreateScan inserts a new scan in pending status and returns it.
func (s *Store) CreateScan(ctx context.Context, userID int64, scanType model.ScanType, target, scope string) (*model.Scan, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (user_id, scan_type, target, scope, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		userID, string(scanType), target, nullIfEmpty(scope), string(model.StatusPending), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("scan insert id: %w", err)
	}
	return &model.Scan{
		ID:        id,
		UserID:    userID,
		ScanType:  scanType,
		Target:    target,
		Scope:     scope,
		Status:    model.StatusPending,
		CreatedAt: now.Truncate(time.Millisecond),
	}, nil
}

// GetScan returns one scan by id, or model.ErrNotFound.
func (s *Store) GetScan(ctx context.Context, id int64) (*model.Scan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE id = ? LIMIT 1`, id)
	sc, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %d: %w", id, err)
	}
	return sc, nil
}

// ListScans returns scans newest-first. With all=true every scan is
// returned; otherwise only those owned by userID.
func (s *Store) ListScans(ctx context.Context, userID int64, all bool) ([]model.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans`
	args := []any{}
	if !all {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var out []model.Scan
	for rows.Next() {
		sc, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

// transition edges: each target status lists the statuses it may be reached
// from. Terminal statuses have no outgoing edges.
var allowedFrom = map[model.ScanStatus][]model.ScanStatus{
	model.StatusRunning:   {model.StatusPending},
	model.StatusCompleted: {model.StatusRunning},
	model.StatusFailed:    {model.StatusRunning},
}

// TransitionStatus moves a scan along the pending -> running -> terminal
// state machine. completedAt and duration are recorded only for terminal
// targets. Returns model.ErrInvalidTransition when the scan is not in a
// status the edge allows, model.ErrNotFound when it does not exist.
func (s *Store) TransitionStatus(ctx context.Context, id int64, to model.ScanStatus, completedAt *time.Time, duration *int64) error {
	from, ok := allowedFrom[to]
	if !ok {
		return fmt.Errorf("no edge into status %q: %w", to, model.ErrInvalidTransition)
	}

	query := `UPDATE scans SET status = ?`
	args := []any{string(to)}
	if to.Terminal() {
		var completedMs any
		if completedAt != nil {
			completedMs = completedAt.UnixMilli()
		}
		var dur any
		if duration != nil {
			dur = *duration
		}
		query += `, completed_at = ?, duration = ?`
		args = append(args, completedMs, dur)
	}
	query += ` WHERE id = ? AND status IN (` + placeholders(len(from)) + `)`
	args = append(args, id)
	for _, f := range from {
		args = append(args, string(f))
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition scan %d to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing scan from a forbidden edge.
		if _, err := s.GetScan(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("scan %d cannot move to %s: %w", id, to, model.ErrInvalidTransition)
	}
	return nil
}

// ClaimOldestPending atomically claims the oldest pending scan for workerID,
// moving it to running and recording the claim. Returns (nil, nil) when no
// pending scan exists. Two racing claims can never win the same scan: the
// guarded UPDATE admits exactly one winner and the loser retries against the
// next candidate.
func (s *Store) ClaimOldestPending(ctx context.Context, workerID string) (*model.Scan, error) {
	for {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM scans WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
			string(model.StatusPending))
		var id int64
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select pending scan: %w", err)
		}

		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx,
			`UPDATE scans SET status = ?, worker_id = ?, worker_picked_at = ?
             WHERE id = ? AND status = ?`,
			string(model.StatusRunning), workerID, now.UnixMilli(), id, string(model.StatusPending))
		if err != nil {
			return nil, fmt.Errorf("claim scan %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Lost the race for this candidate; try the next one.
			s.logger.Debug("claim race lost, retrying",
				logging.Field{Key: "scan_id", Value: id},
				logging.Field{Key: "worker_id", Value: workerID})
			continue
		}
		return s.GetScan(ctx, id)
	}
}

// FinalizeClaimed moves a worker-claimed scan from running to the supplied
// terminal status, but only while the claim still belongs to workerID.
// Returns model.ErrInvalidState when the scan is no longer running under
// that claim, protecting finalized scans from stale or duplicate reports.
func (s *Store) FinalizeClaimed(ctx context.Context, id int64, workerID string, to model.ScanStatus, completedAt time.Time, duration int64) error {
	if !to.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q: %w", to, model.ErrInvalidState)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = ?, completed_at = ?, duration = ?
         WHERE id = ? AND status = ? AND worker_id = ?`,
		string(to), completedAt.UnixMilli(), duration, id, string(model.StatusRunning), workerID)
	if err != nil {
		return fmt.Errorf("finalize scan %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetScan(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("scan %d is not running under worker %s: %w", id, workerID, model.ErrInvalidState)
	}
	return nil
}

// CompleteWithResults finalizes a worker-claimed scan and persists its
// findings and report in one transaction, so a reader can never observe a
// terminal scan whose results are missing. The claim-guarded UPDATE runs
// first inside the transaction; a stale or duplicate post fails with
// model.ErrInvalidState and nothing is written. An empty content skips the
// report row (failed scans carry no report).
func (s *Store) CompleteWithResults(ctx context.Context, id int64, workerID string, to model.ScanStatus, completedAt time.Time, duration int64, findings []model.Finding, content string, summary model.Summary) error {
	if !to.Terminal() {
		return fmt.Errorf("finalize requires a terminal status, got %q: %w", to, model.ErrInvalidState)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE scans SET status = ?, completed_at = ?, duration = ?
         WHERE id = ? AND status = ? AND worker_id = ?`,
		string(to), completedAt.UnixMilli(), duration, id, string(model.StatusRunning), workerID)
	if err != nil {
		return fmt.Errorf("finalize scan %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Nothing was written yet; read the committed row to tell a missing
		// scan from a lost or already-finalized claim.
		if _, err := s.GetScan(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("scan %d is not running under worker %s: %w", id, workerID, model.ErrInvalidState)
	}

	if err := insertFindings(ctx, tx, id, findings); err != nil {
		return err
	}
	if content != "" {
		if _, err := insertReport(ctx, tx, id, content, summary, completedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// StatusCounts tallies scans per status, scoped to one user unless all.
func (s *Store) StatusCounts(ctx context.Context, userID int64, all bool) (map[model.ScanStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM scans`
	args := []any{}
	if !all {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.ScanStatus]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[model.ScanStatus(st)] = n
	}
	return counts, rows.Err()
}

// SeverityCounts tallies findings per severity across completed scans,
// scoped to one user unless all.
func (s *Store) SeverityCounts(ctx context.Context, userID int64, all bool) (model.Summary, error) {
	query := `SELECT f.severity, COUNT(*)
              FROM findings f JOIN scans sc ON sc.id = f.scan_id
              WHERE sc.status = ?`
	args := []any{string(model.StatusCompleted)}
	if !all {
		query += ` AND sc.user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY f.severity`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.Summary{}, fmt.Errorf("severity counts: %w", err)
	}
	defer rows.Close()

	var sum model.Summary
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return model.Summary{}, err
		}
		sum.Total += n
		switch model.Severity(sev) {
		case model.SeverityCritical:
			sum.Critical = n
		case model.SeverityHigh:
			sum.High = n
		case model.SeverityMedium:
			sum.Medium = n
		case model.SeverityLow:
			sum.Low = n
		case model.SeverityInfo:
			sum.Info = n
		}
	}
	return sum, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func placeholders(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "?"
	}
	out := "?"
	for i := 1; i < n; i++ {
		out += ", ?"
	}
	return out
}
