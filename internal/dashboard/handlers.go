// internal/dashboard/handlers.go
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalnine/marvinous/internal/pipeline"
	"github.com/signalnine/marvinous/internal/protocol"
	"github.com/signalnine/marvinous/internal/report"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type reportList struct {
	Reports []reportItem `json:"reports"`
	Total   int          `json:"total"`
}

type reportItem struct {
	report.Meta
	Size string `json:"size"`
}

type reportContent struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Severity  string    `json:"severity"`
}

type collectResponse struct {
	Status  string `json:"status"` // started | already_running
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

type runList struct {
	Runs   []protocol.RunRecord `json:"runs"`
	Total  int                  `json:"total"`
	Counts map[string]int       `json:"counts"` // all runs by outcome
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	metas, err := report.ListReports(s.cfg.General.ReportDir)
	if err != nil {
		slog.Error("list reports", "dir", s.cfg.General.ReportDir, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read reports: "+err.Error())
		return
	}

	filter := ""
	if v := r.URL.Query().Get("severity"); v != "" {
		sev, ok := report.ParseSeverity(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid severity: "+v)
			return
		}
		filter = sev.Lower()
	}

	items := make([]reportItem, 0, len(metas))
	for _, m := range metas {
		if filter != "" && m.Severity != filter {
			continue
		}
		items = append(items, reportItem{Meta: m, Size: humanize.Bytes(uint64(m.SizeBytes))})
	}
	writeJSON(w, http.StatusOK, reportList{Reports: items, Total: len(items)})
}

// validFilename rejects anything that could leave the report directory
func validFilename(name string) bool {
	return name != "" && !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !validFilename(name) {
		slog.Warn("invalid report filename requested", "filename", name)
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if filepath.Ext(name) != report.Ext {
		writeError(w, http.StatusBadRequest, "only .md files allowed")
		return
	}

	data, err := os.ReadFile(filepath.Join(s.cfg.General.ReportDir, name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("read report", "filename", name, "error", err)
		}
		writeError(w, http.StatusNotFound, "report not found: "+name)
		return
	}

	// Unrecognized names keep the zero timestamp
	ts, _, _ := report.ParseFilenameTime(name)
	writeJSON(w, http.StatusOK, reportContent{
		Filename:  name,
		Timestamp: ts,
		Content:   string(data),
		Severity:  report.Classify(string(data)).Lower(),
	})
}

func (s *Server) triggerCollect(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		triggerRejects.WithLabelValues("rate_limited").Inc()
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// The run outlives the request
	ctx := context.WithoutCancel(r.Context())
	runID, _, err := s.app.StartHourly(ctx)
	if errors.Is(err, pipeline.ErrAlreadyRunning) {
		triggerRejects.WithLabelValues("already_running").Inc()
		slog.Info("manual collection ignored, already running")
		writeJSON(w, http.StatusOK, collectResponse{
			Status:  "already_running",
			Message: "A collection is already in progress",
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("manual collection triggered", "run_id", runID, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, collectResponse{
		Status:  "started",
		Message: "Collection started in background",
		RunID:   runID,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Guard.Status())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxRunLimit)
	}

	fetch := s.runs.Recent
	switch v := r.URL.Query().Get("outcome"); v {
	case "":
	case string(pipeline.OutcomeFailed):
		fetch = s.runs.Failures
	default:
		writeError(w, http.StatusBadRequest, "unsupported outcome filter: "+v)
		return
	}

	runs, err := fetch(limit)
	if err != nil {
		slog.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}
	counts, err := s.runs.OutcomeCounts()
	if err != nil {
		slog.Error("count runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run history")
		return
	}
	writeJSON(w, http.StatusOK, runList{Runs: runs, Total: len(runs), Counts: counts})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}
