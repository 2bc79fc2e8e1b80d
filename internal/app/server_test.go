package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docloader/internal/config"
	db "github.com/markdave123-py/docloader/internal/core/database"
	"github.com/markdave123-py/docloader/internal/loader"
)

func testRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	cfg := &config.Config{Port: "0", JWTSecret: secret, AllowedOrigins: []string{"https://app.example"}}
	d := loader.NewDispatcher(&loader.WorkerConfiguration{})
	t.Cleanup(func() { _ = d.Close() })
	return NewRouter(cfg, db.NewMemoryClient(), loader.NewLoader(d))
}

func get(h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_OpenWithoutSecret(t *testing.T) {
	rec := get(testRouter(t, ""), "/api/documents", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRouter_RequiresTokenWithSecret(t *testing.T) {
	h := testRouter(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/documents", nil).Code)

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "u-1",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	rec := get(h, "/api/documents", map[string]string{"Authorization": "Bearer " + tok})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORS(t *testing.T) {
	h := testRouter(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/documents/load", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/documents/load", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_LoadRejectsEmptyBody(t *testing.T) {
	h := testRouter(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/documents/load", nil)
	req.Body = http.NoBody
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_HealthWithoutWorker(t *testing.T) {
	_, configured := loader.CurrentWorker()
	require.False(t, configured)
	assert.Equal(t, http.StatusServiceUnavailable, get(testRouter(t, ""), "/healthz", nil).Code)
}

func TestRouter_TokenEndpointOnlyWhenConfigured(t *testing.T) {
	h := testRouter(t, "s3cret")
	req := httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
