package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/rules"
	"github.com/leadpilot-crm/leadpilot-saas/domains/segments/be/service"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/logging"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/problem"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

const (
	problemTypeValidation   = "https://leadpilot.dev/problems/validation-error"
	problemTypeNotFound     = "https://leadpilot.dev/problems/not-found"
	problemTypeUnauthorized = "https://leadpilot.dev/problems/unauthorized"
	problemTypeInternal     = "https://leadpilot.dev/problems/internal-error"
	segmentsBasePath        = "/api/v1/segments"
)

type operation string

const (
	listOperation      operation = "listSegments"
	createOperation    operation = "createSegment"
	getOperation       operation = "getSegment"
	updateOperation    operation = "updateSegment"
	deleteOperation    operation = "deleteSegment"
	applyOperation     operation = "applySegment"
	lastApplyOperation operation = "getLastApply"
)

// Handler exposes the segment registry and apply workflow over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("segments service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the segment endpoints on the given router. The caller is
// expected to have installed auth and scope middleware above this subtree.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{segmentId}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
		r.Post("/apply", h.apply)
		r.Get("/last-apply", h.lastApply)
	})
}

type segmentPayload struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Color     string          `json:"color"`
	Rules     json.RawMessage `json:"rules"`
	CreatedAt time.Time       `json:"createdAt"`
}

type definitionRequest struct {
	Name  string          `json:"name"`
	Color string          `json:"color"`
	Rules json.RawMessage `json:"rules"`
}

type applyRequest struct {
	ClearOthers bool `json:"clearOthers"`
}

type applyResponse struct {
	MatchedCount    int64 `json:"matchedCount"`
	ReassignedCount int64 `json:"reassignedCount"`
	UnassignedCount int64 `json:"unassignedCount"`
}

type lastApplyResponse struct {
	SegmentID       uuid.UUID `json:"segmentId"`
	MatchedCount    int64     `json:"matchedCount"`
	ReassignedCount int64     `json:"reassignedCount"`
	UnassignedCount int64     `json:"unassignedCount"`
	ClearOthers     bool      `json:"clearOthers"`
	AppliedAt       time.Time `json:"appliedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}

	segments, err := h.svc.List(r.Context(), sc)
	if err != nil {
		h.renderError(w, r, err, listOperation)
		return
	}

	items := make([]segmentPayload, 0, len(segments))
	for _, seg := range segments {
		payload, err := toAPISegment(seg)
		if err != nil {
			h.renderError(w, r, err, listOperation)
			return
		}
		items = append(items, payload)
	}

	h.renderJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}

	var body definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Render(w, problem.Build("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	seg, err := h.svc.Create(r.Context(), sc, service.DefinitionParams{
		Name:  body.Name,
		Color: body.Color,
		Rules: body.Rules,
	})
	if err != nil {
		h.renderError(w, r, err, createOperation)
		return
	}

	payload, err := toAPISegment(seg)
	if err != nil {
		h.renderError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%s", segmentsBasePath, seg.ID))
	h.renderJSON(w, http.StatusCreated, payload)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	segmentID, ok := h.segmentID(w, r)
	if !ok {
		return
	}

	seg, err := h.svc.Get(r.Context(), sc, segmentID)
	if err != nil {
		h.renderError(w, r, err, getOperation)
		return
	}

	payload, err := toAPISegment(seg)
	if err != nil {
		h.renderError(w, r, err, getOperation)
		return
	}
	h.renderJSON(w, http.StatusOK, payload)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	segmentID, ok := h.segmentID(w, r)
	if !ok {
		return
	}

	var body definitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Render(w, problem.Build("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	seg, err := h.svc.Update(r.Context(), sc, segmentID, service.DefinitionParams{
		Name:  body.Name,
		Color: body.Color,
		Rules: body.Rules,
	})
	if err != nil {
		h.renderError(w, r, err, updateOperation)
		return
	}

	payload, err := toAPISegment(seg)
	if err != nil {
		h.renderError(w, r, err, updateOperation)
		return
	}
	h.renderJSON(w, http.StatusOK, payload)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	segmentID, ok := h.segmentID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), sc, segmentID); err != nil {
		h.renderError(w, r, err, deleteOperation)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	segmentID, ok := h.segmentID(w, r)
	if !ok {
		return
	}

	// An empty body means an additive run.
	var body applyRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			problem.Render(w, problem.Build("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
			return
		}
	}

	summary, err := h.svc.Apply(r.Context(), sc, segmentID, service.ApplyOptions{ClearOthers: body.ClearOthers})
	if err != nil {
		h.renderError(w, r, err, applyOperation)
		return
	}

	h.renderJSON(w, http.StatusOK, applyResponse{
		MatchedCount:    summary.MatchedCount,
		ReassignedCount: summary.ReassignedCount,
		UnassignedCount: summary.UnassignedCount,
	})
}

func (h *Handler) lastApply(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	segmentID, ok := h.segmentID(w, r)
	if !ok {
		return
	}

	summary, found, err := h.svc.LastApply(r.Context(), sc, segmentID)
	if err != nil {
		h.renderError(w, r, err, lastApplyOperation)
		return
	}
	if !found {
		problem.Render(w, problem.Build("Resource not found", "no apply summary recorded for this segment", problemTypeNotFound, http.StatusNotFound, nil))
		return
	}

	h.renderJSON(w, http.StatusOK, lastApplyResponse{
		SegmentID:       summary.SegmentID,
		MatchedCount:    summary.MatchedCount,
		ReassignedCount: summary.ReassignedCount,
		UnassignedCount: summary.UnassignedCount,
		ClearOthers:     summary.ClearOthers,
		AppliedAt:       summary.AppliedAt,
	})
}

func (h *Handler) requireScope(w http.ResponseWriter, r *http.Request) (scope.Scope, bool) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		problem.Render(w, problem.Build("Unauthorized", "no tenant scope resolved for this request", problemTypeUnauthorized, http.StatusUnauthorized, nil))
		return scope.Scope{}, false
	}
	return sc, true
}

func (h *Handler) segmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "segmentId"))
	if err != nil {
		problem.Render(w, problem.Build("Validation failed", "segmentId must be a UUID", problemTypeValidation, http.StatusBadRequest, nil))
		return uuid.UUID{}, false
	}
	return id, true
}

func toAPISegment(seg service.Segment) (segmentPayload, error) {
	encoded, err := rules.EncodeRuleSet(seg.Rules)
	if err != nil {
		return segmentPayload{}, fmt.Errorf("encode rule set: %w", err)
	}

	return segmentPayload{
		ID:        seg.ID,
		Name:      seg.Name,
		Color:     seg.Color,
		Rules:     encoded,
		CreatedAt: seg.CreatedAt,
	}, nil
}

func (h *Handler) renderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, title, detail, problemType, fieldErrors := classifyError(err)

	logger := logging.FromRequest(r, h.logger)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("segments operation failed", append(fields, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("segments resource not found", append(fields, zap.Error(err))...)
	default:
		logger.Warn("segments request rejected", append(fields, zap.Error(err))...)
	}

	problem.Render(w, problem.Build(title, detail, problemType, status, fieldErrors))
}

func classifyError(err error) (status int, title, detail, problemType string, fieldErrors map[string][]string) {
	var ruleErr *rules.ValidationError
	var inputErr *service.ValidationError
	var storeErr *service.StoreFailure
	switch {
	case errors.As(err, &ruleErr):
		return http.StatusBadRequest,
			"Validation failed",
			"the rule set is invalid",
			problemTypeValidation,
			map[string][]string{ruleErr.Field: {ruleErr.Reason}}
	case errors.As(err, &inputErr):
		return http.StatusBadRequest,
			"Validation failed",
			inputErr.Reason,
			problemTypeValidation,
			nil
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"segment not found",
			problemTypeNotFound,
			nil
	case errors.As(err, &storeErr):
		return http.StatusInternalServerError,
			"Internal server error",
			fmt.Sprintf("segment reconciliation failed during the %s phase", storeErr.Phase),
			problemTypeInternal,
			nil
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problemTypeInternal,
			nil
	}
}
