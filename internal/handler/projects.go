package handler

import (
	"net/http"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/server/middleware"
	"github.com/projectdesk/projectdesk/internal/store"
)

// ProjectHandler manages projects under the owner-or-admin policy: admins
// see and touch everything, other users only their own rows.
type ProjectHandler struct {
	store *store.Store
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(st *store.Store) *ProjectHandler {
	return &ProjectHandler{store: st}
}

type projectCreateRequest struct {
	Name   string `json:"name"`
	Data   string `json:"data"`
	UserID *int64 `json:"user_id"`
}

type projectUpdateRequest struct {
	Name   *string `json:"name"`
	Data   *string `json:"data"`
	UserID *int64  `json:"user_id"`
}

// List returns non-deleted projects. Non-admins are filtered, not rejected:
// they receive only their own projects, so a cross-tenant row is simply
// invisible rather than a 403.
// GET /projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var ownerID *int64
	if !principal.Admin {
		ownerID = &principal.ID
	}

	projects, err := h.store.ListProjects(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list projects: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// Get returns a single project.
// GET /projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	project, err := h.store.GetProjectByID(r.Context(), id)
	if err != nil || project.IsDeleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !principal.Admin && project.UserID != principal.ID {
		writeError(w, http.StatusForbidden, "Not enough permissions")
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// Create adds a new project. The owner defaults to the caller; only admins
// may name someone else, and the target must be a live user.
// POST /projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req projectCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !validProjectName(req.Name) {
		writeError(w, http.StatusBadRequest, "Project name must be 1-255 characters")
		return
	}

	ownerID := principal.ID
	if req.UserID != nil {
		if !principal.Admin && *req.UserID != principal.ID {
			writeError(w, http.StatusForbidden, "Only admins can set the project owner")
			return
		}
		ownerID = *req.UserID
	}

	owner, err := h.store.GetUserByID(r.Context(), ownerID)
	if err != nil || owner.IsDeleted {
		writeError(w, http.StatusNotFound, "Owner user not found")
		return
	}

	project := &model.Project{
		Name:      req.Name,
		Data:      req.Data,
		UserID:    ownerID,
		IsDeleted: false,
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create project: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// Update applies a partial update to a project. Ownership transfer is
// admin-only and requires a live target user.
// PATCH /projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	var req projectUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	project, err := h.store.GetProjectByID(r.Context(), id)
	if err != nil || project.IsDeleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !principal.Admin && project.UserID != principal.ID {
		writeError(w, http.StatusForbidden, "Not enough permissions")
		return
	}

	if req.Name != nil {
		if !validProjectName(*req.Name) {
			writeError(w, http.StatusBadRequest, "Project name must be 1-255 characters")
			return
		}
		project.Name = *req.Name
	}
	if req.Data != nil {
		project.Data = *req.Data
	}

	if req.UserID != nil && *req.UserID != project.UserID {
		if !principal.Admin {
			writeError(w, http.StatusForbidden, "Only admins can change the project owner")
			return
		}
		owner, err := h.store.GetUserByID(r.Context(), *req.UserID)
		if err != nil || owner.IsDeleted {
			writeError(w, http.StatusNotFound, "Owner user not found")
			return
		}
		project.UserID = *req.UserID
	}

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update project: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// Delete soft-deletes a project.
// DELETE /projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	id, ok := urlID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid project id")
		return
	}

	project, err := h.store.GetProjectByID(r.Context(), id)
	if err != nil || project.IsDeleted {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	if !principal.Admin && project.UserID != principal.ID {
		writeError(w, http.StatusForbidden, "Not enough permissions")
		return
	}

	if err := h.store.SoftDeleteProject(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete project: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
