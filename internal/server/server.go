// Package server exposes the orchestration core over HTTP: the client scan
// API, the authenticated worker job surface and the websocket log stream.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/breakingcid/scand/docs/swagger" // registers the generated swagger spec
	"github.com/breakingcid/scand/internal/dispatch"
	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/logstream"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/report"
	"github.com/breakingcid/scand/internal/scanner"
	"github.com/breakingcid/scand/internal/scans"
	"github.com/breakingcid/scand/internal/store"
)

// Server is the HTTP + WebSocket API surface for scand.
type Server struct {
	cfg        Config
	router     chi.Router
	upgrader   websocket.Upgrader
	logger     logging.Logger
	store      *store.Store
	manager    *scans.Manager
	hub        *logstream.Hub
	dispatcher *dispatch.Dispatcher
}

// NewServer opens the store and wires the manager, log hub and local
// dispatcher together.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "scand.db"
	}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	hub := logstream.NewHub(st, logger)
	manager := scans.NewManager(st, logger)

	sc := cfg.Scanner
	if sc == nil {
		sc = scanner.NewExecScanner(cfg.ScannerCfg, logger)
	}
	dispatcher := dispatch.NewDispatcher(cfg.DispatchCfg, manager, st, hub, sc, logger)

	s := &Server{
		cfg:        cfg,
		router:     chi.NewRouter(),
		logger:     logger,
		store:      st,
		manager:    manager,
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/scans", s.optionsHandler("GET, POST"))
	r.Options("/scans/stats", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/logs", s.optionsHandler("GET"))
	r.Options("/scans/{scanID}/report", s.optionsHandler("GET"))

	// Client-facing scan API
	r.Post("/scans", s.handleCreateScan)
	r.Get("/scans", s.handleListScans)
	r.Get("/scans/stats", s.handleStats)
	r.Get("/scans/{scanID}", s.handleGetScan)
	r.Get("/scans/{scanID}/logs", s.handleScanLogs)
	r.Get("/scans/{scanID}/report", s.handleExportReport)

	// WebSocket live log stream
	r.Get("/ws/scans/{scanID}/logs", s.handleLogsWS)

	// Worker job surface, behind the shared-secret credential
	r.Route("/worker", func(w chi.Router) {
		w.Use(s.workerAuth)
		w.Get("/jobs/pending", s.handlePendingJob)
		w.Post("/jobs/{scanID}/logs", s.handleWorkerLog)
		w.Post("/jobs/{scanID}/results", s.handleWorkerResults)
		w.Post("/jobs/{scanID}/error", s.handleWorkerError)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-Id, X-User-Role, X-Worker-API-Key")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the server's resources. Locally dispatched scans run to
// a terminal status first so none is stranded in running.
func (s *Server) Close() {
	if s.dispatcher != nil {
		s.dispatcher.Wait()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// ─── JSON helpers ──────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeDomainError maps the core error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrInvalidState):
		status = http.StatusConflict
	}
	writeError(w, status, err.Error())
}

// ─── identity ──────────────────────────────────────────────────────────

// identity is the caller the fronting auth layer asserts via the X-User-Id
// and X-User-Role headers. Authentication itself happens upstream.
type identity struct {
	UserID int64
	Admin  bool
}

func callerIdentity(r *http.Request) (identity, error) {
	raw := r.Header.Get("X-User-Id")
	if raw == "" {
		return identity{}, fmt.Errorf("missing X-User-Id header: %w", model.ErrUnauthorized)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return identity{}, fmt.Errorf("malformed X-User-Id header: %w", model.ErrUnauthorized)
	}
	return identity{UserID: id, Admin: r.Header.Get("X-User-Role") == "admin"}, nil
}

func scanIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "scanID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed scan id %q: %w", raw, model.ErrInvalidInput)
	}
	return id, nil
}

// ─── client handlers ───────────────────────────────────────────────────

// handleCreateScan godoc
//
//	@Summary		Request a new scan
//	@Description	Validates the request and persists a pending scan. With local dispatch enabled the scan starts immediately in the background.
//	@Tags			scans
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CreateScanRequest	true	"Scan request"
//	@Success		201		{object}	CreateScanResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/scans [post]
func (s *Server) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var body CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sc, err := s.manager.Create(r.Context(), ident.UserID, model.ScanType(body.ScanType), body.Target, body.Scope)
	if err != nil {
		s.logger.Warn("creating scan", logging.Field{Key: "error", Value: err.Error()})
		writeDomainError(w, err)
		return
	}

	if !s.cfg.RemoteWorkers {
		// Fire and forget; the scan's status is the caller's window into
		// progress from here on. The scan must outlive the request, so it
		// does not inherit the request's cancellation.
		s.dispatcher.Start(context.WithoutCancel(r.Context()), sc)
	}

	writeJSON(w, http.StatusCreated, CreateScanResponse{ScanID: sc.ID, Status: string(sc.Status)})
}

// handleListScans godoc
//
//	@Summary	List scans visible to the caller
//	@Tags		scans
//	@Produce	json
//	@Success	200	{array}		model.Scan
//	@Failure	401	{object}	ErrorResponse
//	@Router		/scans [get]
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := s.manager.List(r.Context(), ident.UserID, ident.Admin)
	if err != nil {
		s.logger.Warn("listing scans", logging.Field{Key: "error", Value: err.Error()})
		writeDomainError(w, err)
		return
	}
	if list == nil {
		list = []model.Scan{}
	}
	writeJSON(w, http.StatusOK, list)
}

// handleStats godoc
//
//	@Summary	Aggregate scan and finding counts for the caller
//	@Tags		scans
//	@Produce	json
//	@Success	200	{object}	scans.Stats
//	@Failure	401	{object}	ErrorResponse
//	@Router		/scans/stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stats, err := s.manager.ComputeStats(r.Context(), ident.UserID, ident.Admin)
	if err != nil {
		s.logger.Warn("computing stats", logging.Field{Key: "error", Value: err.Error()})
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetScan godoc
//
//	@Summary	Fetch a scan with its findings and report
//	@Tags		scans
//	@Produce	json
//	@Param		scanID	path		int	true	"Scan ID"
//	@Success	200		{object}	scans.Details
//	@Failure	403		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/scans/{scanID} [get]
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	details, err := s.manager.Get(r.Context(), scanID, ident.UserID, ident.Admin)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if details.Vulnerabilities == nil {
		details.Vulnerabilities = []model.Finding{}
	}
	writeJSON(w, http.StatusOK, details)
}

// handleScanLogs godoc
//
//	@Summary	Read the durable log history of a scan
//	@Tags		scans
//	@Produce	json
//	@Param		scanID	path		int	true	"Scan ID"
//	@Success	200		{array}		model.LogEntry
//	@Failure	404		{object}	ErrorResponse
//	@Router		/scans/{scanID}/logs [get]
func (s *Server) handleScanLogs(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Visibility check before reading history.
	if _, err := s.manager.Get(r.Context(), scanID, ident.UserID, ident.Admin); err != nil {
		writeDomainError(w, err)
		return
	}

	entries, err := s.hub.History(r.Context(), scanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExportReport godoc
//
//	@Summary	Export a scan report
//	@Tags		scans
//	@Produce	plain
//	@Param		scanID	path		int		true	"Scan ID"
//	@Param		format	query		string	false	"text, markdown, json, csv or xml"	default(text)
//	@Success	200		{string}	string
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/scans/{scanID}/report [get]
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	details, err := s.manager.Get(r.Context(), scanID, ident.UserID, ident.Admin)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatText
	}
	out, err := report.Export(format, details.Scan, details.Vulnerabilities)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ─── websocket log stream ──────────────────────────────────────────────

func (s *Server) handleLogsWS(w http.ResponseWriter, r *http.Request) {
	ident, err := callerIdentity(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if _, err := s.manager.Get(r.Context(), scanID, ident.UserID, ident.Admin); err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(scanID)
	defer sub.Close()

	// Drain reads so close frames are processed; any read error ends the
	// subscription and with it the write loop below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.Close()
				return
			}
		}
	}()

	for entry := range sub.C {
		if err := conn.WriteJSON(entry); err != nil {
			// Client went away.
			return
		}
	}
}
