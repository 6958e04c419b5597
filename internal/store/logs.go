package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/breakingcid/scand/internal/model"
)

// AppendLog durably appends one log entry for a scan. The scan must exist;
// a dangling scan id maps to model.ErrNotFound via the foreign key.
func (s *Store) AppendLog(ctx context.Context, scanID int64, message string, level model.LogLevel) (*model.LogEntry, error) {
	if !level.Valid() {
		level = model.LevelInfo
	}
	// Foreign keys are connection-scoped in SQLite, so check the scan
	// explicitly instead of relying on the pragma being set on the pooled
	// connection that runs the insert.
	if _, err := s.GetScan(ctx, scanID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_logs (scan_id, message, level, timestamp) VALUES (?, ?, ?, ?)`,
		scanID, message, string(level), now.UnixMilli())
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("scan %d: %w", scanID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("append log for scan %d: %w", scanID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &model.LogEntry{
		ID:        id,
		ScanID:    scanID,
		Message:   message,
		Level:     level,
		Timestamp: now.Truncate(time.Millisecond),
	}, nil
}

// LogsByScan returns the full durable log history for a scan in append
// order. Clients that subscribed late use this as the catch-up path.
func (s *Store) LogsByScan(ctx context.Context, scanID int64) ([]model.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scan_id, message, level, timestamp
         FROM scan_logs WHERE scan_id = ? ORDER BY timestamp ASC, id ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("logs for scan %d: %w", scanID, err)
	}
	defer rows.Close()

	var out []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var ts int64
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Message, &e.Level, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrimLogs deletes all but the newest keep entries for a scan. Log growth is
// otherwise unbounded; callers decide the retention policy.
func (s *Store) TrimLogs(ctx context.Context, scanID int64, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scan_logs WHERE scan_id = ? AND id NOT IN (
             SELECT id FROM scan_logs WHERE scan_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?
         )`, scanID, scanID, keep)
	if err != nil {
		return 0, fmt.Errorf("trim logs for scan %d: %w", scanID, err)
	}
	return res.RowsAffected()
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
