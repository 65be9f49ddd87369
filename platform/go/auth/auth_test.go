package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBearer_NoTokenPassesThroughUnauthenticated(t *testing.T) {
	verify := func(context.Context, string) (map[string]interface{}, error) {
		t.Fatal("verify must not be called without a token")
		return nil, nil
	}

	var sawCreds bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawCreds = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/segments", nil)
	Bearer(verify, nil)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sawCreds)
}

func TestBearer_ValidTokenSetsCredentials(t *testing.T) {
	verify := func(_ context.Context, token string) (map[string]interface{}, error) {
		require.Equal(t, "token-123", token)
		return map[string]interface{}{
			"sub":            "user-1",
			"email":          "a@b.c",
			"organizationId": "org-1",
		}, nil
	}

	var got *UserCredentials
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/segments", nil)
	req.Header.Set("Authorization", "Bearer token-123")
	Bearer(verify, nil)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.ID)
	require.NotNil(t, got.OrganizationID)
	require.Equal(t, "org-1", *got.OrganizationID)
}

func TestBearer_InvalidTokenRejected(t *testing.T) {
	verify := func(context.Context, string) (map[string]interface{}, error) {
		return nil, errors.New("signature mismatch")
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on invalid token")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/segments", nil)
	req.Header.Set("Authorization", "Bearer bad")
	Bearer(verify, nil)(next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, found := ExtractBearerToken(req)
	require.False(t, found)

	req.Header.Set("Authorization", "bearer abc ")
	token, found := ExtractBearerToken(req)
	require.True(t, found)
	require.Equal(t, "abc", token)
}

func TestDefaultCredentialExtractor_MissingSubject(t *testing.T) {
	_, err := DefaultCredentialExtractor(map[string]interface{}{"email": "a@b.c"})
	require.Error(t, err)
}
