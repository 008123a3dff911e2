// Package rest exposes the evaluation pipeline over HTTP: transfer
// evaluation, decision recording, redaction preview and ledger
// administration.
package rest

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/davidleathers/crossborder-health-compliance/internal/domain/audit"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/catalog"
	"github.com/davidleathers/crossborder-health-compliance/internal/domain/errors"
	"github.com/davidleathers/crossborder-health-compliance/internal/service/evaluation"
)

// Handler routes API requests to the evaluation service.
type Handler struct {
	service  *evaluation.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(service *evaluation.Service, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/evaluations", h.handleEvaluate)
	mux.HandleFunc("POST /api/v1/evaluations/{id}/decision", h.handleDecision)
	mux.HandleFunc("POST /api/v1/redactions", h.handleRedact)
	mux.HandleFunc("GET /api/v1/ledger/verify", h.handleVerify)
	mux.HandleFunc("POST /api/v1/ledger/retry", h.handleRetry)
	mux.HandleFunc("POST /api/v1/ledger/purge", h.handlePurge)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	return mux
}

type evaluateRequest struct {
	Source      string         `json:"source" validate:"required"`
	Destination string         `json:"destination" validate:"required"`
	Residency   string         `json:"residency"`
	Path        []string       `json:"path" validate:"required,min=1,dive,required"`
	Dataset     map[string]any `json:"dataset" validate:"required"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}

	path := make([]catalog.JurisdictionCode, len(req.Path))
	for i, hop := range req.Path {
		path[i] = catalog.JurisdictionCode(hop)
	}

	result, err := h.service.Evaluate(r.Context(), evaluation.Request{
		Source:      catalog.JurisdictionCode(req.Source),
		Destination: catalog.JurisdictionCode(req.Destination),
		Residency:   catalog.JurisdictionCode(req.Residency),
		Path:        path,
		Dataset:     req.Dataset,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type decisionRequest struct {
	Decision   string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	ReviewerID string `json:"reviewer_id" validate:"required"`
	Rationale  string `json:"rationale" validate:"required"`
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request) {
	evaluationID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_ID", "evaluation id must be a UUID"))
		return
	}

	var req decisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.service.RecordDecision(r.Context(), evaluationID, audit.ApprovalDecision{
		Decision:   audit.Decision(req.Decision),
		ReviewerID: req.ReviewerID,
		Rationale:  req.Rationale,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]any{
		"record_id": record.ID,
		"sequence":  record.Sequence,
		"kind":      record.Kind,
	})
}

type redactRequest struct {
	Dataset map[string]any `json:"dataset" validate:"required"`
}

func (h *Handler) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !h.decode(w, r, &req) {
		return
	}

	redacted, findings, err := h.service.RedactPreview(r.Context(), req.Dataset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"dataset":  redacted,
		"findings": findings,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	from, ok := h.queryInt(w, r, "from", 0)
	if !ok {
		return
	}
	to, ok := h.queryInt(w, r, "to", math.MaxInt64)
	if !ok {
		return
	}

	result, err := h.service.VerifyLedger(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	flushed, err := h.service.RetryPendingAppends(r.Context())
	if err != nil {
		// Partial flushes still report progress alongside the error.
		h.writeJSON(w, errors.GetStatusCode(err), map[string]any{
			"flushed": flushed,
			"error":   err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"flushed": flushed})
}

type purgeRequest struct {
	PolicyNote string `json:"policy_note" validate:"required"`
}

func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.service.PurgeExpired(r.Context(), req.PolicyNote)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if record == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"purged": 0})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"purged":    len(record.PurgedSequences),
		"record_id": record.ID,
		"sequence":  record.Sequence,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_JSON", "request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		h.writeError(w, r, errors.NewValidationError("INVALID_REQUEST", err.Error()))
		return false
	}
	return true
}

func (h *Handler) queryInt(w http.ResponseWriter, r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		h.writeError(w, r, errors.NewValidationError("INVALID_QUERY",
			name+" must be a non-negative integer"))
		return 0, false
	}
	return v, true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.GetStatusCode(err)
	body := errorBody{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path, "error", err)
	}
	h.writeJSON(w, status, map[string]errorBody{"error": body})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
