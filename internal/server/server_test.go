package server_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/server"
	"github.com/breakingcid/scand/internal/testutil"
)

const workerKey = "test-worker-secret"

func newTestServer(t *testing.T, remoteWorkers bool, sc *testutil.ScriptedScanner) *server.Server {
	t.Helper()

	if sc == nil {
		sc = &testutil.ScriptedScanner{}
	}
	cfg := server.Config{
		ListenAddr:    ":0",
		DatabasePath:  filepath.Join(t.TempDir(), "scand_test.db"),
		WorkerAPIKey:  workerKey,
		RemoteWorkers: remoteWorkers,
		Scanner:       sc,
		Logger:        &testutil.DummyLogger{},
	}

	s, err := server.NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type reqOpts struct {
	userID string
	role   string
	worker bool
}

func doJSON(t *testing.T, s http.Handler, method, path, body string, opts reqOpts) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if opts.userID != "" {
		req.Header.Set("X-User-Id", opts.userID)
	}
	if opts.role != "" {
		req.Header.Set("X-User-Role", opts.role)
	}
	if opts.worker {
		req.Header.Set("X-Worker-API-Key", workerKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func asUser(id string) reqOpts  { return reqOpts{userID: id} }
func asAdmin(id string) reqOpts { return reqOpts{userID: id, role: "admin"} }
func asWorker() reqOpts         { return reqOpts{worker: true} }

func createScan(t *testing.T, s http.Handler, userID, body string) int64 {
	t.Helper()
	rec := doJSON(t, s, "POST", "/scans", body, asUser(userID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create scan: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ScanID int64  `json:"scanId"`
		Status string `json:"status"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Status != "pending" {
		t.Fatalf("new scan status: want pending got %s", resp.Status)
	}
	return resp.ScanID
}

// ─── Auth ──────────────────────────────────────────────────────────────

func TestServer_RequiresIdentityHeaders(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	for _, path := range []string{"/scans", "/scans/stats", "/scans/1", "/scans/1/logs", "/scans/1/report"} {
		rec := doJSON(t, s, "GET", path, "", reqOpts{})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without identity: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestServer_WorkerSurfaceRequiresKey(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	rec := doJSON(t, s, "GET", "/worker/jobs/pending?workerId=w1", "", reqOpts{})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing key: expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest("GET", "/worker/jobs/pending?workerId=w1", nil)
	req.Header.Set("X-Worker-API-Key", "wrong")
	out := httptest.NewRecorder()
	s.ServeHTTP(out, req)
	if out.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: expected 401, got %d", out.Code)
	}
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORSHeaderPresent(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	rec := doJSON(t, s, "GET", "/scans", "", asUser("1"))
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

func TestServer_OptionsPreflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	rec := doJSON(t, s, "OPTIONS", "/scans", "", reqOpts{})
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Allow-Methods header on OPTIONS")
	}
}

// ─── Creating scans ────────────────────────────────────────────────────

func TestServer_CreateScanValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	cases := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{invalid}`},
		{"unknown type", `{"scanType":"port_scan","target":"https://example.com"}`},
		{"bad target", `{"scanType":"xss","target":"not a url"}`},
		{"missing target", `{"scanType":"xss"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, s, "POST", "/scans", tc.body, asUser("1"))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_ListScansVisibility(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	createScan(t, s, "1", `{"scanType":"xss","target":"https://a.example.com"}`)
	createScan(t, s, "2", `{"scanType":"ssrf","target":"https://b.example.com"}`)

	var mine []map[string]any
	rec := doJSON(t, s, "GET", "/scans", "", asUser("1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeJSON(t, rec, &mine)
	if len(mine) != 1 {
		t.Fatalf("user 1 should see 1 scan, got %d", len(mine))
	}

	var all []map[string]any
	rec = doJSON(t, s, "GET", "/scans", "", asAdmin("3"))
	decodeJSON(t, rec, &all)
	if len(all) != 2 {
		t.Fatalf("admin should see 2 scans, got %d", len(all))
	}
}

func TestServer_GetScanOwnership(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	id := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)
	path := fmt.Sprintf("/scans/%d", id)

	if rec := doJSON(t, s, "GET", path, "", asUser("2")); rec.Code != http.StatusForbidden {
		t.Errorf("other user: expected 403, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "GET", path, "", asAdmin("2")); rec.Code != http.StatusOK {
		t.Errorf("admin: expected 200, got %d", rec.Code)
	}
	if rec := doJSON(t, s, "GET", "/scans/9999", "", asUser("1")); rec.Code != http.StatusNotFound {
		t.Errorf("missing scan: expected 404, got %d", rec.Code)
	}
}

// ─── Remote worker flow ────────────────────────────────────────────────

func TestServer_RemoteWorkerFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)

	// claim
	rec := doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var claim struct {
		Job *struct {
			ID       int64  `json:"id"`
			ScanType string `json:"scanType"`
			Target   string `json:"target"`
		} `json:"job"`
	}
	decodeJSON(t, rec, &claim)
	if claim.Job == nil || claim.Job.ID != scanID {
		t.Fatalf("unexpected claim: %+v", claim.Job)
	}
	if claim.Job.ScanType != "xss" || claim.Job.Target != "https://example.com" {
		t.Fatalf("claim payload mismatch: %+v", claim.Job)
	}

	// claimed scan is now running
	var details struct {
		Scan struct {
			Status   string `json:"status"`
			WorkerID string `json:"workerId"`
		} `json:"scan"`
	}
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d", scanID), "", asUser("1"))
	decodeJSON(t, rec, &details)
	if details.Scan.Status != "running" || details.Scan.WorkerID != "worker-1" {
		t.Fatalf("scan after claim: %+v", details.Scan)
	}

	// stream one log line
	rec = doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/logs", scanID),
		`{"message":"[*] probing endpoint","level":"info"}`, asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("worker log: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// report results with one critical finding
	results := `{
		"workerId": "worker-1",
		"status": "completed",
		"duration": 42,
		"vulnerabilities": [
			{"type": "reflected_xss", "severity": "critical", "title": "Reflected XSS in q parameter"}
		]
	}`
	rec = doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID), results, asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("results: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// the scan is completed with findings and an aggregated report
	var full struct {
		Scan struct {
			Status   string `json:"status"`
			Duration *int64 `json:"duration"`
		} `json:"scan"`
		Vulnerabilities []map[string]any `json:"vulnerabilities"`
		Report          *struct {
			Summary model.Summary `json:"summary"`
			Content string        `json:"content"`
		} `json:"report"`
	}
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d", scanID), "", asUser("1"))
	decodeJSON(t, rec, &full)
	if full.Scan.Status != "completed" {
		t.Fatalf("status: want completed got %s", full.Scan.Status)
	}
	if full.Scan.Duration == nil || *full.Scan.Duration != 42 {
		t.Fatalf("duration not recorded: %+v", full.Scan.Duration)
	}
	if len(full.Vulnerabilities) != 1 {
		t.Fatalf("want 1 vulnerability got %d", len(full.Vulnerabilities))
	}
	if full.Report == nil || full.Report.Summary.Total != 1 || full.Report.Summary.Critical != 1 {
		t.Fatalf("unexpected report: %+v", full.Report)
	}
	if full.Report.Content == "" {
		t.Fatal("report content empty")
	}

	// the streamed log line is durable
	var logs []map[string]any
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d/logs", scanID), "", asUser("1"))
	decodeJSON(t, rec, &logs)
	if len(logs) == 0 {
		t.Fatal("expected durable log history")
	}

	// a duplicate results post must be rejected without changing anything
	rec = doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID), results, asWorker())
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate results: expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	// so must a late error post
	rec = doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/error", scanID),
		`{"workerId":"worker-1","error":"too late"}`, asWorker())
	if rec.Code != http.StatusConflict {
		t.Fatalf("late error post: expected 409, got %d", rec.Code)
	}
}

func TestServer_WorkerResultsRejectInvalidFindings(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)
	doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())

	cases := []struct {
		name    string
		payload string
	}{
		{"unknown severity", `{"type":"reflected_xss","severity":"banana","title":"t"}`},
		{"empty title", `{"type":"reflected_xss","severity":"high","title":""}`},
		{"empty type", `{"type":"","severity":"high","title":"t"}`},
	}
	for _, tc := range cases {
		body := fmt.Sprintf(`{"workerId":"worker-1","status":"completed","duration":1,"vulnerabilities":[%s]}`, tc.payload)
		rec := doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID), body, asWorker())
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, rec.Code, rec.Body.String())
		}
	}

	// the rejected posts must not have touched the scan or stored anything
	var details struct {
		Scan struct {
			Status string `json:"status"`
		} `json:"scan"`
		Vulnerabilities []map[string]any `json:"vulnerabilities"`
	}
	rec := doJSON(t, s, "GET", fmt.Sprintf("/scans/%d", scanID), "", asUser("1"))
	decodeJSON(t, rec, &details)
	if details.Scan.Status != "running" {
		t.Fatalf("scan after rejected results: want running got %s", details.Scan.Status)
	}
	if len(details.Vulnerabilities) != 0 {
		t.Fatalf("rejected findings were stored: %+v", details.Vulnerabilities)
	}

	// the claim is still live, so a valid post goes through
	rec = doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID),
		`{"workerId":"worker-1","status":"completed","duration":1,"vulnerabilities":[
			{"type":"reflected_xss","severity":"high","title":"Reflected XSS"}
		]}`, asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("valid results after rejections: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestServer_ClaimEmptyQueue(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	rec := doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var claim struct {
		Job *json.RawMessage `json:"job"`
	}
	decodeJSON(t, rec, &claim)
	if claim.Job != nil {
		t.Fatalf("empty queue should return null job, got %s", *claim.Job)
	}
}

func TestServer_WorkerErrorFailsScan(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	scanID := createScan(t, s, "1", `{"scanType":"ssrf","target":"https://example.com"}`)
	doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())

	rec := doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/error", scanID),
		`{"workerId":"worker-1","error":"target unreachable"}`, asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("error post: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var details struct {
		Scan struct {
			Status string `json:"status"`
		} `json:"scan"`
	}
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d", scanID), "", asUser("1"))
	decodeJSON(t, rec, &details)
	if details.Scan.Status != "failed" {
		t.Fatalf("status: want failed got %s", details.Scan.Status)
	}
}

func TestServer_ResultsFromWrongWorkerRejected(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)
	doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())

	rec := doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID),
		`{"workerId":"worker-2","status":"completed","vulnerabilities":[],"duration":1}`, asWorker())
	if rec.Code != http.StatusConflict {
		t.Fatalf("foreign worker results: expected 409, got %d", rec.Code)
	}
}

// ─── Stats and exports ─────────────────────────────────────────────────

func TestServer_Stats(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	createScan(t, s, "1", `{"scanType":"xss","target":"https://a.example.com"}`)
	createScan(t, s, "1", `{"scanType":"ssrf","target":"https://b.example.com"}`)

	var stats struct {
		Scans struct {
			Total   int `json:"total"`
			Pending int `json:"pending"`
		} `json:"scans"`
		Vulnerabilities model.Summary `json:"vulnerabilities"`
	}
	rec := doJSON(t, s, "GET", "/scans/stats", "", asUser("1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	decodeJSON(t, rec, &stats)
	if stats.Scans.Total != 2 || stats.Scans.Pending != 2 {
		t.Fatalf("unexpected stats: %+v", stats.Scans)
	}
}

func TestServer_ReportExportFormats(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)
	doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())
	doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/results", scanID),
		`{"workerId":"worker-1","status":"completed","duration":5,"vulnerabilities":[
			{"type":"reflected_xss","severity":"critical","title":"Reflected XSS"}
		]}`, asWorker())

	// default format is the plain-text report
	rec := doJSON(t, s, "GET", fmt.Sprintf("/scans/%d/report", scanID), "", asUser("1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("text export: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SCAND SECURITY SCAN REPORT") {
		t.Fatal("text export missing report header")
	}

	// json export carries the risk assessment
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d/report?format=json", scanID), "", asUser("1"))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("json content type: %s", ct)
	}
	var doc struct {
		RiskScore int    `json:"riskScore"`
		RiskLevel string `json:"riskLevel"`
	}
	decodeJSON(t, rec, &doc)
	if doc.RiskScore != 25 || doc.RiskLevel != "LOW" {
		t.Fatalf("risk assessment: want 25/LOW got %d/%s", doc.RiskScore, doc.RiskLevel)
	}

	// csv export
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d/report?format=csv", scanID), "", asUser("1"))
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("csv content type: %s", ct)
	}

	// unknown format
	rec = doJSON(t, s, "GET", fmt.Sprintf("/scans/%d/report?format=pdf", scanID), "", asUser("1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown format: expected 400, got %d", rec.Code)
	}
}

// ─── Local dispatch ────────────────────────────────────────────────────

func TestServer_LocalDispatchRunsScan(t *testing.T) {
	t.Parallel()
	sc := &testutil.ScriptedScanner{
		Findings: map[model.ScanType][]model.Finding{
			model.ScanXSS: {
				{Type: "reflected_xss", Severity: model.SeverityHigh, Title: "Reflected XSS"},
			},
		},
	}
	s := newTestServer(t, false, sc)

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)

	var details struct {
		Scan struct {
			Status string `json:"status"`
		} `json:"scan"`
		Report *struct {
			Summary model.Summary `json:"summary"`
		} `json:"report"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec := doJSON(t, s, "GET", fmt.Sprintf("/scans/%d", scanID), "", asUser("1"))
		decodeJSON(t, rec, &details)
		if details.Scan.Status == "completed" || details.Scan.Status == "failed" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("scan never finished, status %s", details.Scan.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if details.Scan.Status != "completed" {
		t.Fatalf("status: want completed got %s", details.Scan.Status)
	}
	if details.Report == nil || details.Report.Summary.High != 1 {
		t.Fatalf("unexpected report: %+v", details.Report)
	}
}

// ─── API docs ──────────────────────────────────────────────────────────

func TestServer_SwaggerSpecServed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	rec := doJSON(t, s, "GET", "/swagger/doc.json", "", reqOpts{})
	if rec.Code != http.StatusOK {
		t.Fatalf("doc.json: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var doc struct {
		Swagger string `json:"swagger"`
		Info    struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	decodeJSON(t, rec, &doc)
	if doc.Swagger != "2.0" || doc.Info.Title != "scand API" {
		t.Fatalf("unexpected spec: %+v", doc)
	}
}

// ─── WebSocket log stream ──────────────────────────────────────────────

func TestServer_LogStreamWebSocket(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, true, nil)

	ts := httptest.NewServer(s)
	defer ts.Close()

	scanID := createScan(t, s, "1", `{"scanType":"xss","target":"https://example.com"}`)
	doJSON(t, s, "GET", "/worker/jobs/pending?workerId=worker-1", "", asWorker())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/ws/scans/%d/logs", scanID)
	header := http.Header{}
	header.Set("X-User-Id", "1")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	// give the subscription a moment to register before publishing
	time.Sleep(50 * time.Millisecond)
	rec := doJSON(t, s, "POST", fmt.Sprintf("/worker/jobs/%d/logs", scanID),
		`{"message":"[*] live line","level":"info"}`, asWorker())
	if rec.Code != http.StatusOK {
		t.Fatalf("worker log: expected 200, got %d", rec.Code)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var entry model.LogEntry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read websocket entry: %v", err)
	}
	if entry.Message != "[*] live line" || entry.ScanID != scanID {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
