// Package testutil provides shared test doubles for use across package
// tests. All dummies implement the corresponding interfaces from the
// production code, allowing injection into components under test without
// real I/O or side effects.
package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/store"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Scanner ───────────────────────────────────────────────────────────

// ScriptedScanner implements scanner.Scanner with canned per-type results.
// FailUntil forces errors for a scan type until that many calls were made,
// which exercises the retry path.
type ScriptedScanner struct {
	mu        sync.Mutex
	Findings  map[model.ScanType][]model.Finding
	Errs      map[model.ScanType]error
	FailUntil map[model.ScanType]int
	Calls     map[model.ScanType]int
}

func (s *ScriptedScanner) Run(ctx context.Context, scanType model.ScanType, target, scope string) ([]model.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Calls == nil {
		s.Calls = make(map[model.ScanType]int)
	}
	s.Calls[scanType]++
	if until, ok := s.FailUntil[scanType]; ok && s.Calls[scanType] < until {
		return nil, model.ErrScannerFailure
	}
	if err, ok := s.Errs[scanType]; ok {
		return nil, err
	}
	return s.Findings[scanType], nil
}

// ─── Store ─────────────────────────────────────────────────────────────

// OpenStore returns a Store backed by a per-test temp-dir SQLite file.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	// The pragmas go in the DSN so they apply to every pooled connection,
	// not just the one that would run a PRAGMA exec.
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/scand_test.db"+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	st, err := store.New(db, &DummyLogger{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
