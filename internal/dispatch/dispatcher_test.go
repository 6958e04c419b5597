package dispatch_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/breakingcid/scand/internal/dispatch"
	"github.com/breakingcid/scand/internal/logstream"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/scans"
	"github.com/breakingcid/scand/internal/store"
	"github.com/breakingcid/scand/internal/testutil"
)

type harness struct {
	store      *store.Store
	manager    *scans.Manager
	hub        *logstream.Hub
	scanner    *testutil.ScriptedScanner
	dispatcher *dispatch.Dispatcher
}

func newHarness(t *testing.T, sc *testutil.ScriptedScanner) *harness {
	t.Helper()
	logger := &testutil.DummyLogger{}
	st := testutil.OpenStore(t)
	hub := logstream.NewHub(st, logger)
	manager := scans.NewManager(st, logger)
	d := dispatch.NewDispatcher(dispatch.Config{MaxRetries: 3, BackoffBase: time.Millisecond},
		manager, st, hub, sc, logger)
	return &harness{store: st, manager: manager, hub: hub, scanner: sc, dispatcher: d}
}

func (h *harness) createScan(t *testing.T, scanType model.ScanType) *model.Scan {
	t.Helper()
	sc, err := h.manager.Create(context.Background(), 1, scanType, "https://example.com", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sc
}

func TestDispatcher_SuccessfulScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.ScriptedScanner{
		Findings: map[model.ScanType][]model.Finding{
			model.ScanXSS: {
				{Type: "reflected_xss", Severity: model.SeverityCritical, Title: "Reflected XSS"},
			},
		},
	})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanXSS)

	if err := h.dispatcher.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, err := h.store.GetScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status: want completed got %s", got.Status)
	}
	if got.CompletedAt == nil || got.Duration == nil {
		t.Fatalf("terminal fields missing: %+v", got)
	}

	findings, err := h.store.FindingsByScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("FindingsByScan: %v", err)
	}
	if len(findings) != 1 || findings[0].Title != "Reflected XSS" {
		t.Fatalf("unexpected findings: %+v", findings)
	}

	rep, err := h.store.ReportByScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("ReportByScan: %v", err)
	}
	if rep.Summary.Total != 1 || rep.Summary.Critical != 1 {
		t.Fatalf("unexpected report summary: %+v", rep.Summary)
	}
	if rep.Content == "" {
		t.Fatal("report content empty")
	}

	logs, err := h.hub.History(ctx, sc.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(logs) == 0 {
		t.Fatal("expected progress logs for the scan")
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.ScriptedScanner{
		Findings:  map[model.ScanType][]model.Finding{model.ScanSSRF: {}},
		FailUntil: map[model.ScanType]int{model.ScanSSRF: 3},
	})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanSSRF)

	if err := h.dispatcher.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := h.store.GetScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Fatalf("status after retries: want completed got %s", got.Status)
	}
	if calls := h.scanner.Calls[model.ScanSSRF]; calls != 3 {
		t.Fatalf("scanner calls: want 3 got %d", calls)
	}
}

func TestDispatcher_ExhaustedRetriesFailTheScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.ScriptedScanner{
		Errs: map[model.ScanType]error{model.ScanXSS: model.ErrScannerFailure},
	})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanXSS)

	if err := h.dispatcher.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := h.store.GetScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("status: want failed got %s", got.Status)
	}
	if calls := h.scanner.Calls[model.ScanXSS]; calls != 3 {
		t.Fatalf("scanner calls: want 3 got %d", calls)
	}
	if _, err := h.store.ReportByScan(ctx, sc.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("failed scan must have no report, got %v", err)
	}
}

func TestDispatcher_ComprehensiveMergesInTechniqueOrder(t *testing.T) {
	t.Parallel()
	findings := map[model.ScanType][]model.Finding{}
	for _, tech := range model.Techniques() {
		findings[tech] = []model.Finding{
			{Type: string(tech), Severity: model.SeverityLow, Title: "finding from " + string(tech)},
		}
	}
	h := newHarness(t, &testutil.ScriptedScanner{Findings: findings})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanComprehensive)

	if err := h.dispatcher.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored, err := h.store.FindingsByScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("FindingsByScan: %v", err)
	}
	techniques := model.Techniques()
	if len(stored) != len(techniques) {
		t.Fatalf("want %d findings got %d", len(techniques), len(stored))
	}
	for i, tech := range techniques {
		if stored[i].Type != string(tech) {
			t.Fatalf("finding %d: want technique %s got %s", i, tech, stored[i].Type)
		}
	}
}

func TestDispatcher_ComprehensiveFailsWhenAnyTechniqueFails(t *testing.T) {
	t.Parallel()
	findings := map[model.ScanType][]model.Finding{}
	for _, tech := range model.Techniques() {
		findings[tech] = []model.Finding{
			{Type: string(tech), Severity: model.SeverityLow, Title: "partial"},
		}
	}
	h := newHarness(t, &testutil.ScriptedScanner{
		Findings: findings,
		Errs:     map[model.ScanType]error{model.ScanSubdomainEnum: model.ErrScannerFailure},
	})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanComprehensive)

	if err := h.dispatcher.Execute(ctx, sc); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got, err := h.store.GetScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("status: want failed got %s", got.Status)
	}

	// Partial findings from the techniques that succeeded are discarded.
	stored, err := h.store.FindingsByScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("FindingsByScan: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("partial findings were persisted: %+v", stored)
	}
}

func TestDispatcher_ExecuteRejectsAlreadyClaimedScan(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.ScriptedScanner{})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanXSS)

	if err := h.manager.Transition(ctx, sc.ID, model.StatusRunning, nil, nil); err != nil {
		t.Fatalf("external claim: %v", err)
	}
	if err := h.dispatcher.Execute(ctx, sc); !errors.Is(err, model.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
}

func TestDispatcher_StartAndWait(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &testutil.ScriptedScanner{
		Findings: map[model.ScanType][]model.Finding{model.ScanXSS: {}},
	})
	ctx := context.Background()
	sc := h.createScan(t, model.ScanXSS)

	h.dispatcher.Start(ctx, sc)
	h.dispatcher.Wait()

	got, err := h.store.GetScan(ctx, sc.ID)
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if !got.Status.Terminal() {
		t.Fatalf("scan not terminal after Wait: %s", got.Status)
	}
}
