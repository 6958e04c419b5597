// Package worker implements the remote worker agent: a poll loop that
// claims pending scans from a scand server, executes them with the local
// scanner modules and reports results back over the authenticated worker
// surface.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/report"
	"github.com/breakingcid/scand/internal/scanner"
)

// Config wires an Agent. Zero values get sensible defaults in NewAgent.
type Config struct {
	// ServerURL is the base URL of the scand server, e.g. "http://host:8080".
	ServerURL string

	// APIKey is the shared worker credential.
	APIKey string

	// WorkerID identifies this agent in claims. Defaults to a uuid-based id.
	WorkerID string

	// PollInterval is the sleep between empty-queue polls. Defaults to 5s.
	PollInterval time.Duration

	// MaxRetries and BackoffBase tune per-technique retries. Defaults: 3
	// attempts, 1s base.
	MaxRetries  int
	BackoffBase time.Duration

	// Scanner overrides the scanner collaborator. Defaults to an ExecScanner
	// built from ScannerCfg.
	Scanner    scanner.Scanner
	ScannerCfg scanner.ExecConfig

	Logger logging.Logger

	// HTTPClient overrides the client used for server calls.
	HTTPClient *http.Client
}

// Agent claims and executes scans against a remote scand server.
type Agent struct {
	cfg     Config
	scanner scanner.Scanner
	client  *http.Client
	logger  logging.Logger
}

// job mirrors the server's claim payload.
type job struct {
	ID        int64     `json:"id"`
	ScanType  string    `json:"scanType"`
	Target    string    `json:"target"`
	Scope     string    `json:"scope"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewAgent builds an agent with defaults filled in.
func NewAgent(cfg Config) *Agent {
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Worker")
	}
	sc := cfg.Scanner
	if sc == nil {
		sc = scanner.NewExecScanner(cfg.ScannerCfg, logger)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Agent{cfg: cfg, scanner: sc, client: client, logger: logger}
}

// WorkerID returns the identity this agent claims scans under.
func (a *Agent) WorkerID() string { return a.cfg.WorkerID }

// Run polls for jobs until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("worker started",
		logging.Field{Key: "worker_id", Value: a.cfg.WorkerID},
		logging.Field{Key: "server", Value: a.cfg.ServerURL})

	for {
		j, err := a.claim(ctx)
		if err != nil {
			a.logger.Warn("claiming job", logging.Field{Key: "error", Value: err.Error()})
		} else if j != nil {
			a.process(ctx, j)
			continue // check for more work immediately
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

// process executes one claimed job end to end and reports the outcome. A
// reporting failure is logged but not retried; the server's claim guard
// rejects any later duplicate.
func (a *Agent) process(ctx context.Context, j *job) {
	a.logger.Info("job claimed",
		logging.Field{Key: "scan_id", Value: j.ID},
		logging.Field{Key: "scan_type", Value: j.ScanType},
		logging.Field{Key: "target", Value: j.Target})

	start := time.Now()
	a.streamLog(ctx, j.ID, fmt.Sprintf("[*] Starting %s scan on %s", j.ScanType, j.Target), model.LevelInfo)

	findings, err := a.run(ctx, j)
	duration := int64(time.Since(start).Seconds())

	if err != nil {
		a.streamLog(ctx, j.ID, fmt.Sprintf("[!] Scan failed: %v", err), model.LevelError)
		if rerr := a.reportError(ctx, j.ID, err); rerr != nil {
			a.logger.Error("reporting job failure",
				logging.Field{Key: "scan_id", Value: j.ID},
				logging.Field{Key: "error", Value: rerr.Error()})
		}
		return
	}

	a.streamLog(ctx, j.ID, fmt.Sprintf("[+] Scan completed: %d finding(s) in %ds", len(findings), duration), model.LevelSuccess)
	if rerr := a.reportResults(ctx, j, findings, duration); rerr != nil {
		a.logger.Error("reporting job results",
			logging.Field{Key: "scan_id", Value: j.ID},
			logging.Field{Key: "error", Value: rerr.Error()})
	}
}

// run executes the job's technique, or all four concurrently for a
// comprehensive scan. Any technique failing after retries fails the job.
func (a *Agent) run(ctx context.Context, j *job) ([]model.Finding, error) {
	scanType := model.ScanType(j.ScanType)
	if scanType != model.ScanComprehensive {
		return a.runWithRetry(ctx, j.ID, scanType, j.Target, j.Scope)
	}

	techniques := model.Techniques()
	results := make([][]model.Finding, len(techniques))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range techniques {
		g.Go(func() error {
			found, err := a.runWithRetry(gctx, j.ID, t, j.Target, j.Scope)
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

	var merged []model.Finding
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, nil
}

func (a *Agent) runWithRetry(ctx context.Context, scanID int64, scanType model.ScanType, target, scope string) ([]model.Finding, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		a.streamLog(ctx, scanID, fmt.Sprintf("[*] %s attempt %d/%d", scanType, attempt, a.cfg.MaxRetries), model.LevelInfo)

		findings, err := a.scanner.Run(ctx, scanType, target, scope)
		if err == nil {
			return findings, nil
		}
		lastErr = err
		a.streamLog(ctx, scanID, fmt.Sprintf("[!] %s attempt %d failed: %v", scanType, attempt, err), model.LevelWarning)

		if attempt < a.cfg.MaxRetries {
			select {
			case <-time.After(a.cfg.BackoffBase * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// ─── server calls ──────────────────────────────────────────────────────

func (a *Agent) claim(ctx context.Context) (*job, error) {
	endpoint := fmt.Sprintf("%s/worker/jobs/pending?workerId=%s",
		a.cfg.ServerURL, url.QueryEscape(a.cfg.WorkerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Worker-API-Key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("claim returned status %d", resp.StatusCode)
	}
	var payload struct {
		Job *job `json:"job"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding claim response: %w", err)
	}
	return payload.Job, nil
}

// streamLog best-effort forwards one log line to the scan's log channel.
func (a *Agent) streamLog(ctx context.Context, scanID int64, message string, level model.LogLevel) {
	body := map[string]string{"message": message, "level": string(level)}
	if err := a.post(ctx, fmt.Sprintf("/worker/jobs/%d/logs", scanID), body); err != nil {
		a.logger.Warn("streaming log line",
			logging.Field{Key: "scan_id", Value: scanID},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

func (a *Agent) reportResults(ctx context.Context, j *job, findings []model.Finding, duration int64) error {
	// Pre-render the report locally so the server stores it verbatim. The
	// claim payload carries the scan's creation time so the report dates the
	// scan, not the moment the report was built.
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	sc := &model.Scan{
		ID:        j.ID,
		ScanType:  model.ScanType(j.ScanType),
		Target:    j.Target,
		Scope:     j.Scope,
		Status:    model.StatusCompleted,
		Duration:  &duration,
		CreatedAt: createdAt,
	}

	if findings == nil {
		findings = []model.Finding{}
	}
	body := map[string]any{
		"workerId":        a.cfg.WorkerID,
		"status":          string(model.StatusCompleted),
		"vulnerabilities": findings,
		"duration":        duration,
		"report": map[string]any{
			"content": report.Render(sc, findings),
			"summary": report.BuildSummary(findings),
		},
	}
	return a.post(ctx, fmt.Sprintf("/worker/jobs/%d/results", j.ID), body)
}

func (a *Agent) reportError(ctx context.Context, scanID int64, cause error) error {
	body := map[string]string{
		"workerId": a.cfg.WorkerID,
		"error":    cause.Error(),
	}
	return a.post(ctx, fmt.Sprintf("/worker/jobs/%d/error", scanID), body)
}

func (a *Agent) post(ctx context.Context, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ServerURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Worker-API-Key", a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
