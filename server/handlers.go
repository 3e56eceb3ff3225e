package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hirewire/scout/extract"
)

// startRequest is the start endpoint's body. Omitted fields fall back to
// the configured extraction defaults.
type startRequest struct {
	JobID           string `json:"job_id"`
	ApplicantViewID string `json:"applicant_view_id,omitempty"`
	MaxItems        *int   `json:"max_items,omitempty"`
	BatchSize       *int   `json:"batch_size,omitempty"`
	CooldownMs      *int   `json:"cooldown_ms,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req startRequest
	if !readJSON(w, r, &req) {
		return
	}

	defaults := s.cfg.Load().Extract
	cfg := extract.RunConfig{
		JobID:           req.JobID,
		ApplicantViewID: req.ApplicantViewID,
		MaxItems:        defaults.MaxItems,
		BatchSize:       defaults.BatchSize,
		Cooldown:        time.Duration(defaults.CooldownMs) * time.Millisecond,
		ItemTimeout:     time.Duration(defaults.ItemTimeoutSeconds) * time.Second,
	}
	if req.MaxItems != nil {
		cfg.MaxItems = *req.MaxItems
	}
	if req.BatchSize != nil {
		cfg.BatchSize = *req.BatchSize
	}
	if req.CooldownMs != nil {
		cfg.Cooldown = time.Duration(*req.CooldownMs) * time.Millisecond
	}

	id, err := s.orch.Start(cfg)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	s.log.Infow("Extraction started via API", "run_id", id, "job_id", cfg.JobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.orch.Pause(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pause requested"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.orch.Resume(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if err := s.orch.Cancel(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Snapshot())
}

// handleExport streams the current run's results, terminal or not.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.orch.Snapshot()
	if snap.Phase == extract.PhaseIdle {
		writeError(w, http.StatusConflict, "no run to export")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := extract.WriteResults(w, snap); err != nil {
		s.log.Warnw("Failed to stream results", "run_id", snap.ID, "error", err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []extract.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleRunByID serves /api/runs/{id} and /api/runs/{id}/export.
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing run id")
		return
	}
	id := parts[0]

	snap, err := s.store.GetRun(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if len(parts) > 1 && parts[1] == "export" {
		w.Header().Set("Content-Type", "application/json")
		if err := extract.WriteResults(w, *snap); err != nil {
			s.log.Warnw("Failed to stream results", "run_id", snap.ID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
