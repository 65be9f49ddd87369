package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leadpilot-crm/leadpilot-saas/domains/prospects/be/service"
	"github.com/leadpilot-crm/leadpilot-saas/platform/go/scope"
)

type mockService struct {
	listFn   func(ctx context.Context, sc scope.Scope, params service.ListParams) (service.Page, error)
	createFn func(ctx context.Context, sc scope.Scope, params service.AttributeParams) (service.Prospect, error)
	getFn    func(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) (service.Prospect, error)
	updateFn func(ctx context.Context, sc scope.Scope, prospectID uuid.UUID, params service.AttributeParams) (service.Prospect, error)
	deleteFn func(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) error
}

func (m *mockService) List(ctx context.Context, sc scope.Scope, params service.ListParams) (service.Page, error) {
	if m.listFn == nil {
		panic("listFn not configured")
	}
	return m.listFn(ctx, sc, params)
}

func (m *mockService) Create(ctx context.Context, sc scope.Scope, params service.AttributeParams) (service.Prospect, error) {
	if m.createFn == nil {
		panic("createFn not configured")
	}
	return m.createFn(ctx, sc, params)
}

func (m *mockService) Get(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) (service.Prospect, error) {
	if m.getFn == nil {
		panic("getFn not configured")
	}
	return m.getFn(ctx, sc, prospectID)
}

func (m *mockService) Update(ctx context.Context, sc scope.Scope, prospectID uuid.UUID, params service.AttributeParams) (service.Prospect, error) {
	if m.updateFn == nil {
		panic("updateFn not configured")
	}
	return m.updateFn(ctx, sc, prospectID, params)
}

func (m *mockService) Delete(ctx context.Context, sc scope.Scope, prospectID uuid.UUID) error {
	if m.deleteFn == nil {
		panic("deleteFn not configured")
	}
	return m.deleteFn(ctx, sc, prospectID)
}

func newTestRouter(t *testing.T, svc service.Service, sc scope.Scope) http.Handler {
	t.Helper()

	h := New(svc, zaptest.NewLogger(t))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(scope.WithScope(req.Context(), sc)))
		})
	})
	r.Route("/api/v1/prospects", h.Routes)
	return r
}

func TestHandlerListProspects(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.listFn = func(_ context.Context, _ scope.Scope, params service.ListParams) (service.Page, error) {
		require.Equal(t, 10, params.Limit)
		require.Equal(t, 20, params.Offset)
		require.Equal(t, "score", params.SortColumn)
		return service.Page{
			Items: []service.Prospect{{
				ID:        uuid.New(),
				Name:      "Acme Plumbing",
				Status:    "qualified",
				CreatedAt: time.Now().UTC(),
			}},
			Total: 31,
		}, nil
	}

	router := newTestRouter(t, svc, scope.Personal(uuid.New()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prospects?limit=10&offset=20&sort=score", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(31), resp.Total)
	require.Len(t, resp.Items, 1)
	require.Equal(t, "Acme Plumbing", resp.Items[0].Name)
}

func TestHandlerListProspects_RejectsBadLimit(t *testing.T) {
	t.Parallel()

	router := newTestRouter(t, &mockService{}, scope.Personal(uuid.New()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prospects?limit=9999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestHandlerCreateProspect(t *testing.T) {
	t.Parallel()

	actorID := uuid.New()
	svc := &mockService{}
	svc.createFn = func(_ context.Context, sc scope.Scope, params service.AttributeParams) (service.Prospect, error) {
		require.Equal(t, actorID, sc.ActorID)
		require.Equal(t, "Acme Plumbing", params.Name)
		require.Equal(t, []string{"hot"}, params.Tags)
		return service.Prospect{
			ID:        uuid.New(),
			Name:      params.Name,
			Status:    service.DefaultStatus,
			Tags:      params.Tags,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	router := newTestRouter(t, svc, scope.Personal(actorID))

	body := `{"name":"Acme Plumbing","tags":["hot"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prospects", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/api/v1/prospects/")
}

func TestHandlerCreateProspect_ValidationProblem(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.createFn = func(context.Context, scope.Scope, service.AttributeParams) (service.Prospect, error) {
		return service.Prospect{}, &service.ValidationError{Reason: "name is required"}
	}

	router := newTestRouter(t, svc, scope.Personal(uuid.New()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/prospects", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var prob struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	require.Equal(t, "name is required", prob.Detail)
}

func TestHandlerGetProspect_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.getFn = func(context.Context, scope.Scope, uuid.UUID) (service.Prospect, error) {
		return service.Prospect{}, service.ErrNotFound
	}

	router := newTestRouter(t, svc, scope.Personal(uuid.New()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/prospects/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerDeleteProspect(t *testing.T) {
	t.Parallel()

	prospectID := uuid.New()
	svc := &mockService{}
	svc.deleteFn = func(_ context.Context, _ scope.Scope, id uuid.UUID) error {
		require.Equal(t, prospectID, id)
		return nil
	}

	router := newTestRouter(t, svc, scope.Personal(uuid.New()))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/prospects/"+prospectID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}
