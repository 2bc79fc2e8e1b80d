package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

// AuthHandler issues bearer tokens to the single API client configured by
// CLIENT_ID and CLIENT_SECRET_HASH (a bcrypt hash).
type AuthHandler struct {
	clientID   string
	secretHash []byte
	jwtSecret  []byte
	now        func() time.Time
}

func NewAuthHandler(clientID, secretHash, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		clientID:   clientID,
		secretHash: []byte(secretHash),
		jwtSecret:  []byte(jwtSecret),
		now:        time.Now,
	}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body"})
		return
	}

	// Compared unconditionally; timing does not reveal whether the client id matched.
	hashErr := bcrypt.CompareHashAndPassword(h.secretHash, []byte(req.ClientSecret))
	if req.ClientID != h.clientID || hashErr != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
		return
	}

	exp := h.now().Add(tokenTTL)
	token, err := generateJWT(h.jwtSecret, req.ClientID, exp)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not sign token"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: exp.UTC()})
}

// generateJWT creates a signed token with user ID claim
func generateJWT(secret []byte, userID string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     exp.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
