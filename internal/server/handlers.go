package server

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	svc                 Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
	openapiSpec         []byte
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	Service             Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		svc:                 d.Service,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
		openapiSpec:         d.OpenAPISpec,
	}
}

// HandleCreateRun handles POST /v1/runs.
// A run aborted by a persistence failure answers 500 with the partial run in
// the error details; backend failures inside stages still answer 200.
func (h *Handlers) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRunRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.Input = strings.TrimSpace(req.Input)
	if req.Input == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "input is required")
		return
	}

	run, err := h.svc.Run(r.Context(), req.Input)
	if err != nil {
		h.logger.Error("run aborted", "trace_id", run.TraceID, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeErrorDetails(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "run aborted", run)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// HandleGetTrace handles GET /v1/traces/{trace_id}.
func (h *Handlers) HandleGetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("trace_id")
	spans := h.svc.Spans(traceID)
	if len(spans) == 0 {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "trace not found")
		return
	}
	sum := h.svc.Summary(traceID)
	writeJSON(w, r, http.StatusOK, model.TraceResponse{
		TraceID:          traceID,
		TotalLatencySecs: math.Round(sum.TotalLatency.Seconds()*100) / 100,
		InputTokens:      sum.InputTokens,
		OutputTokens:     sum.OutputTokens,
		Spans:            spans,
	})
}

// HandleListIncidents handles GET /v1/incidents.
func (h *Handlers) HandleListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.svc.Incidents(r.Context())
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if incidents == nil {
		incidents = []model.Incident{}
	}
	writeJSON(w, r, http.StatusOK, incidents)
}

// HandleListFacts handles GET /v1/facts.
func (h *Handlers) HandleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := h.svc.Facts(r.Context())
	if err != nil {
		h.writeStorageError(w, r, err)
		return
	}
	if facts == nil {
		facts = []model.Fact{}
	}
	writeJSON(w, r, http.StatusOK, facts)
}

// HandleHealth handles GET /health. Storage is probed by listing incidents.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status, storage, code := "healthy", "ok", http.StatusOK
	if _, err := h.svc.Incidents(r.Context()); err != nil {
		status, storage, code = "unhealthy", "unavailable", http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, model.HealthResponse{
		Status:        status,
		Version:       h.version,
		Storage:       storage,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handlers) writeStorageError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("storage read failed", "error", err, "path", r.URL.Path)
	if errors.Is(err, r.Context().Err()) {
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "storage unavailable")
}

// HandleOpenAPISpec serves the embedded OpenAPI document.
func (h *Handlers) HandleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	if len(h.openapiSpec) == 0 {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.openapiSpec)
}
