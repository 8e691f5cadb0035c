package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/auth"
)

// AuthHandlers authenticates the single env-configured operator
// account. There is no user registration; the storefront has exactly
// one operator whose credentials live in the environment.
type AuthHandlers struct {
	jwtService   *auth.JWTService
	adminEmail   string
	passwordHash string
}

func NewAuthHandlers(jwtService *auth.JWTService, adminEmail, passwordHash string) *AuthHandlers {
	return &AuthHandlers{
		jwtService:   jwtService,
		adminEmail:   adminEmail,
		passwordHash: passwordHash,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response body
type LoginResponse struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login issues an operator session token. Email comparison is
// constant time so the response does not reveal which credential was
// wrong.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	emailMatch := subtle.ConstantTimeCompare([]byte(req.Email), []byte(h.adminEmail)) == 1
	passwordMatch := auth.CheckPassword(req.Password, h.passwordHash)
	if !emailMatch || !passwordMatch {
		respondJSONError(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(h.adminEmail, auth.RoleOperator)
	if err != nil {
		zlog.Error().Err(err).Str("code", "token_issue_failed").Msg("failed to issue session token")
		respondJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	respondJSON(w, http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}
