package handlers

import (
	"net/http"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// ProjectHandler 项目处理器
type ProjectHandler struct {
	config   *config.Config
	projects *services.ProjectService
}

func NewProjectHandler(cfg *config.Config, projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{config: cfg, projects: projects}
}

// GET /api/projects?status=&owner_id=
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context(),
		utils.GetQueryParam(r, "status", ""),
		utils.GetQueryParam(r, "owner_id", ""))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteListResponse(w, projects, len(projects))
}

// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.projects.Get(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, project)
}

// GET /api/projects/{id}/members
func (h *ProjectHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.projects.Members(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteListResponse(w, members, len(members))
}

// POST /api/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectCreateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	project, err := h.projects.Create(r.Context(), memberID(r), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, project)
}

// PUT /api/projects/{id}
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectUpdateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	project, err := h.projects.Update(r.Context(), chiRoute.URLParam(r, "id"), memberID(r), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, project)
}

// PUT /api/moderation/projects/{id}
func (h *ProjectHandler) ModerateProject(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectUpdateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	project, err := h.projects.ModeratorUpdate(r.Context(), chiRoute.URLParam(r, "id"), memberID(r), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, project)
}

// PUT /api/admin/projects/{id}
func (h *ProjectHandler) AdminUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req models.ProjectUpdateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	project, err := h.projects.AdminUpdate(r.Context(), chiRoute.URLParam(r, "id"), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, project)
}

// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), chiRoute.URLParam(r, "id"), memberID(r)); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"deleted": true})
}

// POST /api/projects/{id}/join
func (h *ProjectHandler) JoinProject(w http.ResponseWriter, r *http.Request) {
	membership, err := h.projects.Join(r.Context(), chiRoute.URLParam(r, "id"), memberID(r))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, membership)
}

// POST /api/projects/{id}/leave
func (h *ProjectHandler) LeaveProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Leave(r.Context(), chiRoute.URLParam(r, "id"), memberID(r)); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{"left": true})
}
