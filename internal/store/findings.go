package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/breakingcid/scand/internal/model"
)

// InsertFindings stores a batch of findings for one scan in a single
// transaction. Findings are immutable once written.
func (s *Store) InsertFindings(ctx context.Context, scanID int64, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin findings tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertFindings(ctx, tx, scanID, findings); err != nil {
		return err
	}
	return tx.Commit()
}

func insertFindings(ctx context.Context, q dbtx, scanID int64, findings []model.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	stmt, err := q.PrepareContext(ctx,
		`INSERT INTO findings (scan_id, type, severity, title, description, payload, evidence, remediation, cvss, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare findings insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixMilli()
	for _, f := range findings {
		createdAt := now
		if !f.CreatedAt.IsZero() {
			createdAt = f.CreatedAt.UnixMilli()
		}
		_, err := stmt.ExecContext(ctx, scanID, f.Type, string(f.Severity), f.Title,
			nullIfEmpty(f.Description), nullIfEmpty(f.Payload), nullIfEmpty(f.Evidence),
			nullIfEmpty(f.Remediation), nullIfEmpty(f.CVSS), createdAt)
		if err != nil {
			return fmt.Errorf("insert finding %q: %w", f.Title, err)
		}
	}
	return nil
}

// FindingsByScan returns a scan's findings in insertion order.
func (s *Store) FindingsByScan(ctx context.Context, scanID int64) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scan_id, type, severity, title, description, payload, evidence, remediation, cvss, created_at
         FROM findings WHERE scan_id = ? ORDER BY id ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("findings for scan %d: %w", scanID, err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var (
			f                                          model.Finding
			desc, payload, evidence, remediation, cvss sql.NullString
			createdAt                                  int64
		)
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Type, &f.Severity, &f.Title,
			&desc, &payload, &evidence, &remediation, &cvss, &createdAt); err != nil {
			return nil, err
		}
		f.Description = desc.String
		f.Payload = payload.String
		f.Evidence = evidence.String
		f.Remediation = remediation.String
		f.CVSS = cvss.String
		f.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
