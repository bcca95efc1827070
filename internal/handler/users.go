package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/service"
	"github.com/projectdesk/projectdesk/internal/store"
)

// UserHandler manages user accounts. Every route is admin-only; the
// protected-admin immunity checks below hold even against other admins.
type UserHandler struct {
	store   *store.Store
	authSvc *service.AuthService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(st *store.Store, authSvc *service.AuthService) *UserHandler {
	return &UserHandler{store: st, authSvc: authSvc}
}

type userCreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

type userUpdateRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Admin    *bool   `json:"admin"`
}

// List returns all non-deleted users.
// GET /users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// Get returns a single user.
// GET /users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil || user.IsDeleted {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Create adds a new user account.
// POST /users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req userCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if !validUsername(req.Username) {
		writeError(w, http.StatusBadRequest, "Username must be 3-50 characters")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	minLen := h.authSvc.Config().MinPasswordLength
	if len(req.Password) < minLen {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Password must be at least %d characters", minLen))
		return
	}

	// Duplicate check spans soft-deleted rows: a deleted user's username and
	// email stay reserved.
	if _, err := h.store.FindUserByUsernameOrEmail(r.Context(), req.Username, req.Email); err == nil {
		writeError(w, http.StatusConflict, "Username or email already in use")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "Failed to check duplicates: "+err.Error())
		return
	}

	hash, err := h.authSvc.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Admin:        req.Admin,
		IsDeleted:    false,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "Username or email already in use")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Update applies a partial update to a user account.
// PATCH /users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req userUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil || user.IsDeleted {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	if req.Username != nil && *req.Username != user.Username {
		if !validUsername(*req.Username) {
			writeError(w, http.StatusBadRequest, "Username must be 3-50 characters")
			return
		}
		taken, err := h.store.UsernameTaken(r.Context(), *req.Username)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to check duplicates: "+err.Error())
			return
		}
		if taken {
			writeError(w, http.StatusConflict, "Username already in use")
			return
		}
		user.Username = *req.Username
	}

	if req.Email != nil && *req.Email != user.Email {
		if !validEmail(*req.Email) {
			writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		taken, err := h.store.EmailTaken(r.Context(), *req.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to check duplicates: "+err.Error())
			return
		}
		if taken {
			writeError(w, http.StatusConflict, "Email already in use")
			return
		}
		user.Email = *req.Email
	}

	if req.Password != nil {
		minLen := h.authSvc.Config().MinPasswordLength
		if len(*req.Password) < minLen {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("Password must be at least %d characters", minLen))
			return
		}
		hash, err := h.authSvc.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to hash password: "+err.Error())
			return
		}
		user.PasswordHash = hash
	}

	if req.Admin != nil {
		// Unconditional: not even another admin may downgrade the bootstrap
		// admin.
		if user.ProtectedAdmin && !*req.Admin {
			writeError(w, http.StatusForbidden, "The first-created admin user cannot be downgraded")
			return
		}
		user.Admin = *req.Admin
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		if isUniqueViolation(err) {
			writeError(w, http.StatusConflict, "Username or email already in use")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update user: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Delete soft-deletes a user account. The row stays in storage; the account
// just disappears from every read path and can no longer log in.
// DELETE /users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil || user.IsDeleted {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if user.ProtectedAdmin {
		writeError(w, http.StatusForbidden, "The first-created admin user cannot be deleted")
		return
	}

	if err := h.store.SoftDeleteUser(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete user: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
