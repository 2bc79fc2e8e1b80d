package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthHandler(t *testing.T) *AuthHandler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthHandler("ingest-bot", string(hash), "jwt-secret")
}

func postToken(h *AuthHandler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Token(rec, httptest.NewRequest(http.MethodPost, "/api/token", strings.NewReader(body)))
	return rec
}

func TestToken_Issues(t *testing.T) {
	h := newAuthHandler(t)
	rec := postToken(h, `{"client_id": "ingest-bot", "client_secret": "hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[tokenResponse](t, rec)
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("jwt-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ingest-bot", claims["user_id"])
	assert.False(t, resp.ExpiresAt.IsZero())
}

func TestToken_Rejects(t *testing.T) {
	h := newAuthHandler(t)

	assert.Equal(t, http.StatusBadRequest, postToken(h, `{`).Code)
	assert.Equal(t, http.StatusUnauthorized, postToken(h, `{"client_id": "ingest-bot", "client_secret": "wrong"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, postToken(h, `{"client_id": "someone", "client_secret": "hunter2"}`).Code)
}
