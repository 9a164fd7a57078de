package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/matcher"
	"github.com/raaihank/docmask/internal/patterns"
	"github.com/raaihank/docmask/internal/pipeline"
)

const defaultHistoryLimit = 50

const uploadField = "image"

type submitResponse struct {
	JobID      string         `json:"job_id"`
	Generation uint64         `json:"generation"`
	State      pipeline.State `json:"state"`
	StatusURL  string         `json:"status_url"`
}

type jobResponse struct {
	JobID       string                 `json:"job_id,omitempty"`
	Generation  uint64                 `json:"generation"`
	State       pipeline.State         `json:"state"`
	Progress    int                    `json:"progress"`
	Matches     []matchResponse        `json:"matches"`
	Text        string                 `json:"text"`
	Error       map[string]interface{} `json:"error,omitempty"`
	ImageURL    string                 `json:"image_url,omitempty"`
	SubmittedAt *time.Time             `json:"submitted_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// matchResponse adds the category highlight color for clients drawing overlays
type matchResponse struct {
	matcher.PIIMatch
	Color string `json:"color,omitempty"`
}

type categoryInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo reports the active configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	defs := s.deps.Orchestrator.Definitions()
	categories := make([]string, len(defs))
	details := make([]categoryInfo, len(defs))
	for i, d := range defs {
		categories[i] = d.ID
		details[i] = categoryInfo{ID: d.ID, Label: d.Label, Color: d.Color}
	}

	info := map[string]interface{}{
		"name":                 "docmask",
		"version":              s.deps.Version,
		"ocr_engine":           s.config.OCR.Engine,
		"ocr_language":         s.config.OCR.Language,
		"categories":           categories,
		"category_details":     details,
		"available_categories": patterns.IDs(),
		"cache_enabled":        s.deps.Cache != nil,
		"audit_enabled":        s.deps.History != nil,
		"websocket_enabled":    s.deps.Hub != nil,
		"max_upload_bytes":     s.config.Server.MaxUploadBytes,
	}
	if s.deps.Hub != nil {
		info["websocket"] = s.deps.Hub.GetStats()
	}
	if s.deps.Cache != nil {
		if stats, err := s.deps.Cache.GetStats(r.Context()); err != nil {
			log.Warn("Failed to read cache stats", zap.Error(err))
		} else {
			info["cache"] = stats
		}
	}
	if s.deps.History != nil {
		if stats, err := s.deps.History.GetStats(r.Context()); err != nil {
			log.Warn("Failed to read audit stats", zap.Error(err))
		} else {
			info["audit"] = stats
		}
	}

	writeJSON(w, http.StatusOK, info)
}

// handleSubmit accepts a multipart image upload and starts a job
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))
	limit := s.config.Server.MaxUploadBytes

	if r.ContentLength > limit {
		writeErrorMessage(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE",
			fmt.Sprintf("Upload exceeds %d bytes", limit))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE",
				fmt.Sprintf("Upload exceeds %d bytes", limit))
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "Expected a multipart form upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST",
			fmt.Sprintf("Missing form field %q", uploadField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Error("Failed to read upload", zap.Error(err))
		writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "Failed to read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = http.DetectContentType(data)
	}

	snap, err := s.deps.Orchestrator.Submit(r.Context(), data, contentType)
	if err != nil {
		writeJobError(w, err)
		return
	}

	log.Info("Job accepted",
		zap.String("job_id", snap.JobID),
		zap.Uint64("generation", snap.Generation),
		zap.String("filename", header.Filename),
	)

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:      snap.JobID,
		Generation: snap.Generation,
		State:      snap.State,
		StatusURL:  "/api/v1/jobs/current",
	})
}

// handleCurrent returns the current job snapshot
func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Orchestrator.Current()

	resp := jobResponse{
		JobID:      snap.JobID,
		Generation: snap.Generation,
		State:      snap.State,
		Progress:   snap.Progress,
		Matches:    make([]matchResponse, len(snap.Matches)),
		Text:       snap.Text,
	}
	catalog := patterns.Default()
	for i, m := range snap.Matches {
		resp.Matches[i] = matchResponse{PIIMatch: m}
		if def, ok := patterns.Lookup(catalog, m.Category); ok {
			resp.Matches[i].Color = def.Color
		}
	}
	if snap.Err != nil {
		resp.Error = snap.Err.ToMap()
	}
	if snap.State == pipeline.StateReady {
		resp.ImageURL = "/api/v1/jobs/current/image"
	}
	if !snap.SubmittedAt.IsZero() {
		resp.SubmittedAt = &snap.SubmittedAt
	}
	if !snap.CompletedAt.IsZero() {
		resp.CompletedAt = &snap.CompletedAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleImage downloads the masked PNG of a ready job
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Orchestrator.Current()
	if snap.State != pipeline.StateReady {
		writeErrorMessage(w, http.StatusConflict, "NOT_READY",
			fmt.Sprintf("No masked image available, job is %s", snap.State))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", s.config.Masking.OutputFilename))
	w.Header().Set("Content-Length", strconv.Itoa(len(snap.Masked)))
	w.WriteHeader(http.StatusOK)
	w.Write(snap.Masked)
}

// handleHistory lists audited jobs
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeErrorMessage(w, http.StatusNotFound, "AUDIT_DISABLED", "Job audit is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeErrorMessage(w, http.StatusBadRequest, "BAD_REQUEST", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	rows, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to list jobs", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "INTERNAL", "Failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": rows})
}

// handleClearCache drops every cached OCR result
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		writeErrorMessage(w, http.StatusNotFound, "CACHE_DISABLED", "OCR cache is not enabled")
		return
	}

	if err := s.deps.Cache.Clear(r.Context()); err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to clear cache", zap.Error(err))
		writeErrorMessage(w, http.StatusInternalServerError, "INTERNAL", "Failed to clear cache")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error_code": code,
		"message":    message,
	})
}

func writeJobError(w http.ResponseWriter, err error) {
	var jobErr *pipeline.JobError
	if !errors.As(err, &jobErr) {
		writeErrorMessage(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, statusForCode(jobErr.Code), jobErr.ToMap())
}

func statusForCode(code pipeline.ErrorCode) int {
	switch code {
	case pipeline.ErrorInputRejected:
		return http.StatusUnsupportedMediaType
	case pipeline.ErrorDecodeFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
