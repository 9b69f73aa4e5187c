package handlers

import (
	"net/http"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// MemberHandler 成员档案、Aura认证与角色
type MemberHandler struct {
	config   *config.Config
	profiles *services.ProfileService
}

func NewMemberHandler(cfg *config.Config, profiles *services.ProfileService) *MemberHandler {
	return &MemberHandler{config: cfg, profiles: profiles}
}

// PUT /api/profile
func (h *MemberHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	member, err := h.profiles.UpdateProfile(r.Context(), memberID(r), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"member":  member,
		"profile": member.Profile(),
	})
}

// POST /api/members/{id}/auras/verify
func (h *MemberHandler) VerifyAura(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyAuraRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	member, err := h.profiles.VerifyAura(r.Context(), memberID(r), chiRoute.URLParam(r, "id"), req.Aura)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, member.Profile())
}

// GET /api/admin/members
func (h *MemberHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.profiles.ListMembers(r.Context())
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteListResponse(w, members, len(members))
}

// PUT /api/admin/members/{id}/role
func (h *MemberHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	var req models.SetRoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	member, err := h.profiles.SetRole(r.Context(), chiRoute.URLParam(r, "id"), req.Role)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, member)
}
