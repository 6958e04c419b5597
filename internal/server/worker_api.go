package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/breakingcid/scand/internal/logging"
	"github.com/breakingcid/scand/internal/model"
	"github.com/breakingcid/scand/internal/report"
)

// workerAuth guards the worker surface with the shared-secret credential.
// With no key configured every request is rejected, so remote workers are
// opt-in.
func (s *Server) workerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Worker-API-Key")
		if s.cfg.WorkerAPIKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.WorkerAPIKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid worker credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handlePendingJob godoc
//
//	@Summary		Claim the oldest pending scan
//	@Description	Atomically claims the oldest pending scan for the calling worker. Job is null when the queue is empty.
//	@Tags			worker
//	@Produce		json
//	@Param			workerId	query		string	true	"Worker identifier"
//	@Success		200			{object}	PendingJobResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		401			{object}	ErrorResponse
//	@Router			/worker/jobs/pending [get]
func (s *Server) handlePendingJob(w http.ResponseWriter, r *http.Request) {
	workerID := r.URL.Query().Get("workerId")
	if workerID == "" {
		writeError(w, http.StatusBadRequest, "workerId query parameter is required")
		return
	}

	sc, err := s.store.ClaimOldestPending(r.Context(), workerID)
	if err != nil {
		s.logger.Error("claiming pending scan",
			logging.Field{Key: "worker_id", Value: workerID},
			logging.Field{Key: "error", Value: err.Error()})
		writeDomainError(w, err)
		return
	}
	if sc == nil {
		writeJSON(w, http.StatusOK, PendingJobResponse{Job: nil})
		return
	}

	s.logger.Info("scan claimed",
		logging.Field{Key: "scan_id", Value: sc.ID},
		logging.Field{Key: "worker_id", Value: workerID})
	writeJSON(w, http.StatusOK, PendingJobResponse{Job: &JobPayload{
		ID:        sc.ID,
		ScanType:  string(sc.ScanType),
		Target:    sc.Target,
		Scope:     sc.Scope,
		CreatedAt: sc.CreatedAt,
	}})
}

// handleWorkerLog godoc
//
//	@Summary	Append one log line to a scan's log channel
//	@Tags		worker
//	@Accept		json
//	@Produce	json
//	@Param		scanID	path		int					true	"Scan ID"
//	@Param		request	body		WorkerLogRequest	true	"Log line"
//	@Success	200		{object}	SuccessResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/worker/jobs/{scanID}/logs [post]
func (s *Server) handleWorkerLog(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var body WorkerLogRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	level := model.LogLevel(body.Level)
	if body.Level == "" {
		level = model.LevelInfo
	}
	if !level.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown log level %q", body.Level))
		return
	}

	if _, err := s.hub.Append(r.Context(), scanID, body.Message, level); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// handleWorkerResults godoc
//
//	@Summary		Report terminal results for a claimed scan
//	@Description	Verifies the claim, moves the scan to its terminal status and persists findings and the report. Repeated or stale posts are rejected with 409 before any state is touched.
//	@Tags			worker
//	@Accept			json
//	@Produce		json
//	@Param			scanID	path		int						true	"Scan ID"
//	@Param			request	body		WorkerResultsRequest	true	"Results"
//	@Success		200		{object}	SuccessResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/worker/jobs/{scanID}/results [post]
func (s *Server) handleWorkerResults(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var body WorkerResultsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "workerId is required")
		return
	}
	to := model.ScanStatus(body.Status)
	if to == "" {
		to = model.StatusCompleted
	}
	if to != model.StatusCompleted && to != model.StatusFailed {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("status %q is not terminal", body.Status))
		return
	}

	// Remote payloads are untrusted; each finding must pass the same checks
	// the scanner envelope decode applies, or summary counts stop adding up.
	now := time.Now().UTC()
	for i := range body.Vulnerabilities {
		f := &body.Vulnerabilities[i]
		if !f.Severity.Valid() {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("vulnerability %d has unknown severity %q", i, f.Severity))
			return
		}
		if f.Title == "" || f.Type == "" {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("vulnerability %d is missing type or title", i))
			return
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
	}

	content, summary, err := s.workerReport(r, scanID, to, body.Duration, &body)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// One transaction covers the claim-guarded terminal transition, the
	// findings and the report; a duplicate or stale post fails with 409 and
	// a storage failure rolls everything back together.
	if err := s.store.CompleteWithResults(r.Context(), scanID, body.WorkerID, to, now, body.Duration,
		body.Vulnerabilities, content, summary); err != nil {
		writeDomainError(w, err)
		return
	}

	s.logger.Info("worker results stored",
		logging.Field{Key: "scan_id", Value: scanID},
		logging.Field{Key: "worker_id", Value: body.WorkerID},
		logging.Field{Key: "findings", Value: len(body.Vulnerabilities)})
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// workerReport resolves the report to store: a worker-rendered one when the
// post carries it, otherwise one aggregated server-side from the posted
// findings. Failed scans store no report.
func (s *Server) workerReport(r *http.Request, scanID int64, to model.ScanStatus, duration int64, body *WorkerResultsRequest) (string, model.Summary, error) {
	if to != model.StatusCompleted {
		return "", model.Summary{}, nil
	}
	if body.Report != nil && body.Report.Content != "" {
		return body.Report.Content, body.Report.Summary, nil
	}

	sc, err := s.store.GetScan(r.Context(), scanID)
	if err != nil {
		return "", model.Summary{}, err
	}
	sc.Status = to
	sc.Duration = &duration
	return report.Render(sc, body.Vulnerabilities), report.BuildSummary(body.Vulnerabilities), nil
}

// handleWorkerError godoc
//
//	@Summary	Report a failed claimed scan
//	@Tags		worker
//	@Accept		json
//	@Produce	json
//	@Param		scanID	path		int					true	"Scan ID"
//	@Param		request	body		WorkerErrorRequest	true	"Error"
//	@Success	200		{object}	SuccessResponse
//	@Failure	404		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/worker/jobs/{scanID}/error [post]
func (s *Server) handleWorkerError(w http.ResponseWriter, r *http.Request) {
	scanID, err := scanIDParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var body WorkerErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "workerId is required")
		return
	}

	now := time.Now().UTC()
	if err := s.store.FinalizeClaimed(r.Context(), scanID, body.WorkerID, model.StatusFailed, now, 0); err != nil {
		writeDomainError(w, err)
		return
	}

	if body.Error != "" {
		if _, err := s.hub.Append(r.Context(), scanID, "[!] Scan failed: "+body.Error, model.LevelError); err != nil {
			s.logger.Warn("appending failure log",
				logging.Field{Key: "scan_id", Value: scanID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
