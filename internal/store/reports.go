package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/breakingcid/scand/internal/model"
)

// CreateReport stores the rendered report for a scan. The scan_id UNIQUE
// constraint enforces the one-report-per-scan invariant; a second write for
// the same scan fails with model.ErrInvalidState.
func (s *Store) CreateReport(ctx context.Context, scanID int64, content string, summary model.Summary) (*model.Report, error) {
	now := time.Now().UTC()
	id, err := insertReport(ctx, s.db, scanID, content, summary, now)
	if err != nil {
		return nil, err
	}
	return &model.Report{
		ID:        id,
		ScanID:    scanID,
		Content:   content,
		Summary:   summary,
		CreatedAt: now.Truncate(time.Millisecond),
	}, nil
}

func insertReport(ctx context.Context, q dbtx, scanID int64, content string, summary model.Summary, now time.Time) (int64, error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("marshal report summary: %w", err)
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO reports (scan_id, content, summary, created_at) VALUES (?, ?, ?, ?)`,
		scanID, content, string(summaryJSON), now.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("scan %d already has a report: %w", scanID, model.ErrInvalidState)
		}
		return 0, fmt.Errorf("insert report: %w", err)
	}
	return res.LastInsertId()
}

// ReportByScan returns the report for a scan, or model.ErrNotFound.
func (s *Store) ReportByScan(ctx context.Context, scanID int64) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scan_id, content, summary, created_at FROM reports WHERE scan_id = ? LIMIT 1`,
		scanID)
	var (
		r           model.Report
		summaryJSON string
		createdAt   int64
	)
	if err := row.Scan(&r.ID, &r.ScanID, &r.Content, &summaryJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("report for scan %d: %w", scanID, err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal report summary: %w", err)
	}
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &r, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text;
	// there is no exported errno type to match on.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
