// Package dispatch executes scans in-process against the external scanner
// collaborator: bounded retries with backoff, per-technique timeouts,
// concurrent fan-out for comprehensive scans, and convergence into the
// lifecycle manager and report aggregator.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/logstream"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/report"
	"github.com/breakingcid/scand/internal/scanner"
	"github.com/breakingcid/scand/internal/scans"
	"github.com/breakingcid/scand/internal/store"
)

// Config tunes retry behavior. Zero values fall back to the production
// policy: 3 attempts, backoff of 1s multiplied by the attempt number.
type Config struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// Dispatcher runs scans locally and drives them to a terminal status.
type Dispatcher struct {
	cfg     Config
	manager *scans.Manager
	store   *store.Store
	hub     *logstream.Hub
	scanner scanner.Scanner
	logger  logging.Logger

	wg sync.WaitGroup
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(cfg Config, manager *scans.Manager, st *store.Store, hub *logstream.Hub, sc scanner.Scanner, logger logging.Logger) *Dispatcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Dispatcher{
		cfg:     cfg,
		manager: manager,
		store:   st,
		hub:     hub,
		scanner: sc,
		logger:  logger,
	}
}

// Start launches the scan in the background. The caller (typically the
// create handler) returns immediately; the scan's status is the observable
// outcome.
func (d *Dispatcher) Start(ctx context.Context, sc *model.Scan) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.Execute(ctx, sc); err != nil {
			d.logger.Error("scan execution failed",
				logging.Field{Key: "scan_id", Value: sc.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}()
}

// Wait blocks until every started scan has reached a terminal status.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Execute runs one scan to completion: running transition, scanner
// invocation(s) with retry, findings + report persistence, terminal
// transition. Execution errors become the scan's failed status; the
// returned error only reports problems the status cannot express (e.g. the
// scan was already claimed elsewhere).
func (d *Dispatcher) Execute(ctx context.Context, sc *model.Scan) error {
	start := time.Now()

	if err := d.manager.Transition(ctx, sc.ID, model.StatusRunning, nil, nil); err != nil {
		return fmt.Errorf("scan %d could not start: %w", sc.ID, err)
	}
	d.log(ctx, sc.ID, model.LevelInfo, "[*] Starting %s scan on %s", sc.ScanType, sc.Target)

	findings, err := d.run(ctx, sc)
	elapsed := int64(time.Since(start).Seconds())
	now := time.Now().UTC()

	if err != nil {
		d.log(ctx, sc.ID, model.LevelError, "[!] Scan failed: %v", err)
		if terr := d.manager.Transition(ctx, sc.ID, model.StatusFailed, &now, &elapsed); terr != nil {
			return fmt.Errorf("scan %d failed and could not be marked failed: %w", sc.ID, terr)
		}
		return nil
	}

	if err := d.store.InsertFindings(ctx, sc.ID, findings); err != nil {
		d.log(ctx, sc.ID, model.LevelError, "[!] Persisting findings failed: %v", err)
		if terr := d.manager.Transition(ctx, sc.ID, model.StatusFailed, &now, &elapsed); terr != nil {
			return terr
		}
		return nil
	}

	// Re-read so finding timestamps and ids appear in the rendered report.
	stored, err := d.store.FindingsByScan(ctx, sc.ID)
	if err != nil {
		stored = findings
	}
	content := report.Render(sc, stored)
	summary := report.BuildSummary(stored)
	if _, err := d.store.CreateReport(ctx, sc.ID, content, summary); err != nil {
		d.log(ctx, sc.ID, model.LevelError, "[!] Persisting report failed: %v", err)
		if terr := d.manager.Transition(ctx, sc.ID, model.StatusFailed, &now, &elapsed); terr != nil {
			return terr
		}
		return nil
	}

	if err := d.manager.Transition(ctx, sc.ID, model.StatusCompleted, &now, &elapsed); err != nil {
		return fmt.Errorf("scan %d finished but could not be marked completed: %w", sc.ID, err)
	}
	d.log(ctx, sc.ID, model.LevelSuccess, "[+] Scan completed: %d finding(s) in %ds", len(stored), elapsed)
	return nil
}

// run invokes the scanner for the scan's type. Comprehensive scans fan out
// to all four techniques concurrently; if any technique fails after
// retries the whole scan fails and partial findings are discarded.
func (d *Dispatcher) run(ctx context.Context, sc *model.Scan) ([]model.Finding, error) {
	if sc.ScanType != model.ScanComprehensive {
		return d.runWithRetry(ctx, sc.ID, sc.ScanType, sc.Target, sc.Scope)
	}

	techniques := model.Techniques()
	results := make([][]model.Finding, len(techniques))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range techniques {
		g.Go(func() error {
			found, err := d.runWithRetry(gctx, sc.ID, t, sc.Target, sc.Scope)
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in fixed technique order so reports are deterministic.
	var merged []model.Finding
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func (d *Dispatcher) runWithRetry(ctx context.Context, scanID int64, scanType model.ScanType, target, scope string) ([]model.Finding, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		d.log(ctx, scanID, model.LevelInfo, "[*] %s attempt %d/%d", scanType, attempt, d.cfg.MaxRetries)

		findings, err := d.scanner.Run(ctx, scanType, target, scope)
		if err == nil {
			return findings, nil
		}
		lastErr = err
		d.log(ctx, scanID, model.LevelWarning, "[!] %s attempt %d failed: %v", scanType, attempt, err)

		if attempt < d.cfg.MaxRetries {
			select {
			case <-time.After(d.cfg.BackoffBase * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func (d *Dispatcher) log(ctx context.Context, scanID int64, level model.LogLevel, format string, args ...any) {
	if _, err := d.hub.Append(ctx, scanID, fmt.Sprintf(format, args...), level); err != nil {
		d.logger.Warn("appending scan log",
			logging.Field{Key: "scan_id", Value: scanID},
			logging.Field{Key: "error", Value: err.Error()})
	}
}
