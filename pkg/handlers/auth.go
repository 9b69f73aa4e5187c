package handlers

import (
	"net/http"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	config     *config.Config
	auth       *services.AuthService
	membership *services.MembershipService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(cfg *config.Config, auth *services.AuthService, membership *services.MembershipService) *AuthHandler {
	return &AuthHandler{
		config:     cfg,
		auth:       auth,
		membership: membership,
	}
}

// Register POST /api/auth/register
// In direct mode the response carries the PIN and GEN ALIXIR ID; in review mode only the pending request.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	result, err := h.membership.Register(r.Context(), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, result)
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.MemberLoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

// AdminLogin POST /api/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	result, err := h.auth.AdminLogin(r.Context(), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

// Me GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	member, err := h.auth.Me(r.Context(), memberID(r))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"member":  member,
		"profile": member.Profile(),
	})
}
