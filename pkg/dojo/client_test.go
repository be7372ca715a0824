package dojo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ProductType(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(ProductType{
			ID: 7, Name: "Acme", Description: "notes", Updated: "2026-08-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok123")
	pt, err := c.ProductType(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, "Token tok123", gotAuth)
	assert.Equal(t, "/product_types/7/", gotPath)
	assert.Equal(t, "Acme", pt.Name)
	assert.Equal(t, "2026-08-01T00:00:00Z", pt.UpdatedMarker())
}

func TestClient_PatchDescription(t *testing.T) {
	var gotMethod string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "tok").PatchDescription(context.Background(), 7, "new text")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, map[string]string{"description": "new text"}, gotBody)
}

func TestClient_NonSuccessBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail": "invalid token"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad").ProductType(context.Background(), 7)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.True(t, apiErr.IsAuth())
	assert.False(t, apiErr.IsTransient())
	assert.Contains(t, apiErr.Body, "invalid token")
}

func TestAPIError_Classes(t *testing.T) {
	assert.True(t, (&APIError{StatusCode: 401}).IsAuth())
	assert.True(t, (&APIError{StatusCode: 429}).IsTransient())
	assert.True(t, (&APIError{StatusCode: 503}).IsTransient())
	assert.False(t, (&APIError{StatusCode: 404}).IsAuth())
	assert.False(t, (&APIError{StatusCode: 404}).IsTransient())
}

func TestProductType_UpdatedMarkerFallsBack(t *testing.T) {
	pt := ProductType{UpdatedAt: "2026-08-02T00:00:00Z"}
	assert.Equal(t, "2026-08-02T00:00:00Z", pt.UpdatedMarker())

	pt.Updated = "2026-08-01T00:00:00Z"
	assert.Equal(t, "2026-08-01T00:00:00Z", pt.UpdatedMarker(), "updated wins when both are set")
}
