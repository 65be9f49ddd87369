package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/service"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/logging"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/problem"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

const (
	problemTypeValidation   = "https://leadpilot.dev/problems/validation-error"
	problemTypeNotFound     = "https://leadpilot.dev/problems/not-found"
	problemTypeUnauthorized = "https://leadpilot.dev/problems/unauthorized"
	problemTypeInternal     = "https://leadpilot.dev/problems/internal-error"
	prospectsBasePath       = "/api/v1/prospects"

	defaultPageLimit = 50
	maxPageLimit     = 500
)

type operation string

const (
	listOperation   operation = "listProspects"
	createOperation operation = "createProspect"
	getOperation    operation = "getProspect"
	updateOperation operation = "updateProspect"
	deleteOperation operation = "deleteProspect"
)

// Handler exposes prospect CRUD over HTTP.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("prospects service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the prospect endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{prospectId}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.delete)
	})
}

type prospectPayload struct {
	ID          uuid.UUID  `json:"id"`
	SegmentID   *uuid.UUID `json:"segmentId,omitempty"`
	Name        string     `json:"name"`
	Company     *string    `json:"company,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Status      string     `json:"status"`
	Rating      *float64   `json:"rating,omitempty"`
	ReviewCount *int32     `json:"reviewCount,omitempty"`
	Score       *int32     `json:"score,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type attributeRequest struct {
	Name        string   `json:"name"`
	Company     *string  `json:"company"`
	Email       *string  `json:"email"`
	Status      string   `json:"status"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int32   `json:"reviewCount"`
	Score       *int32   `json:"score"`
	Tags        []string `json:"tags"`
}

func (r attributeRequest) toParams() service.AttributeParams {
	return service.AttributeParams{
		Name:        r.Name,
		Company:     r.Company,
		Email:       r.Email,
		Status:      r.Status,
		Rating:      r.Rating,
		ReviewCount: r.ReviewCount,
		Score:       r.Score,
		Tags:        r.Tags,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}

	params := service.ListParams{
		Limit:      defaultPageLimit,
		SortColumn: r.URL.Query().Get("sort"),
		SortOrder:  r.URL.Query().Get("order"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxPageLimit {
			problem.Render(w, problem.Build("Validation failed",
				fmt.Sprintf("limit must be an integer between 1 and %d", maxPageLimit),
				problemTypeValidation, http.StatusBadRequest, nil))
			return
		}
		params.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			problem.Render(w, problem.Build("Validation failed", "offset must be a non-negative integer",
				problemTypeValidation, http.StatusBadRequest, nil))
			return
		}
		params.Offset = offset
	}

	page, err := h.svc.List(r.Context(), sc, params)
	if err != nil {
		h.renderError(w, r, err, listOperation)
		return
	}

	items := make([]prospectPayload, 0, len(page.Items))
	for _, prospect := range page.Items {
		items = append(items, toAPIProspect(prospect))
	}

	h.renderJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": page.Total,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}

	var body attributeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Render(w, problem.Build("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	prospect, err := h.svc.Create(r.Context(), sc, body.toParams())
	if err != nil {
		h.renderError(w, r, err, createOperation)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("%s/%s", prospectsBasePath, prospect.ID))
	h.renderJSON(w, http.StatusCreated, toAPIProspect(prospect))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	prospectID, ok := h.prospectID(w, r)
	if !ok {
		return
	}

	prospect, err := h.svc.Get(r.Context(), sc, prospectID)
	if err != nil {
		h.renderError(w, r, err, getOperation)
		return
	}
	h.renderJSON(w, http.StatusOK, toAPIProspect(prospect))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	prospectID, ok := h.prospectID(w, r)
	if !ok {
		return
	}

	var body attributeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Render(w, problem.Build("Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest, nil))
		return
	}

	prospect, err := h.svc.Update(r.Context(), sc, prospectID, body.toParams())
	if err != nil {
		h.renderError(w, r, err, updateOperation)
		return
	}
	h.renderJSON(w, http.StatusOK, toAPIProspect(prospect))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.requireScope(w, r)
	if !ok {
		return
	}
	prospectID, ok := h.prospectID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), sc, prospectID); err != nil {
		h.renderError(w, r, err, deleteOperation)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireScope(w http.ResponseWriter, r *http.Request) (scope.Scope, bool) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		problem.Render(w, problem.Build("Unauthorized", "no tenant scope resolved for this request", problemTypeUnauthorized, http.StatusUnauthorized, nil))
		return scope.Scope{}, false
	}
	return sc, true
}

func (h *Handler) prospectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "prospectId"))
	if err != nil {
		problem.Render(w, problem.Build("Validation failed", "prospectId must be a UUID", problemTypeValidation, http.StatusBadRequest, nil))
		return uuid.UUID{}, false
	}
	return id, true
}

func toAPIProspect(prospect service.Prospect) prospectPayload {
	tags := prospect.Tags
	if tags == nil {
		tags = []string{}
	}

	return prospectPayload{
		ID:          prospect.ID,
		SegmentID:   prospect.SegmentID,
		Name:        prospect.Name,
		Company:     prospect.Company,
		Email:       prospect.Email,
		Status:      prospect.Status,
		Rating:      prospect.Rating,
		ReviewCount: prospect.ReviewCount,
		Score:       prospect.Score,
		Tags:        tags,
		CreatedAt:   prospect.CreatedAt,
	}
}

func (h *Handler) renderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, title, detail, problemType := classifyError(err)

	logger := logging.FromRequest(r, h.logger)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", status),
	}

	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("prospects operation failed", append(fields, zap.Error(err))...)
	case status == http.StatusNotFound:
		logger.Info("prospects resource not found", append(fields, zap.Error(err))...)
	default:
		logger.Warn("prospects request rejected", append(fields, zap.Error(err))...)
	}

	problem.Render(w, problem.Build(title, detail, problemType, status, nil))
}

func classifyError(err error) (status int, title, detail, problemType string) {
	var inputErr *service.ValidationError
	switch {
	case errors.As(err, &inputErr):
		return http.StatusBadRequest,
			"Validation failed",
			inputErr.Reason,
			problemTypeValidation
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound,
			"Resource not found",
			"prospect not found",
			problemTypeNotFound
	default:
		return http.StatusInternalServerError,
			"Internal server error",
			"an unexpected error occurred",
			problemTypeInternal
	}
}
