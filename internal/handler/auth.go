package handler

import (
	"net/http"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/server/middleware"
	"github.com/projectdesk/projectdesk/internal/service"
)

// AuthHandler serves the login endpoint and the current-principal profile.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login exchanges form-encoded credentials for a bearer token.
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	token, err := h.authSvc.Login(r.Context(), username, password)
	if err != nil {
		// One shape for every failure: an unknown username and a wrong
		// password must be indistinguishable.
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	writeJSON(w, http.StatusOK, model.Token{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// Me returns the authenticated user's public profile.
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	writeJSON(w, http.StatusOK, principal.Profile())
}
