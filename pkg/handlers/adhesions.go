package handlers

import (
	"net/http"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"

	chiRoute "github.com/go-chi/chi/v5"
)

// AdhesionHandler 入会申请处理器
type AdhesionHandler struct {
	config     *config.Config
	membership *services.MembershipService
}

func NewAdhesionHandler(cfg *config.Config, membership *services.MembershipService) *AdhesionHandler {
	return &AdhesionHandler{config: cfg, membership: membership}
}

// POST /api/adhesions
func (h *AdhesionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req models.AdhesionSubmitRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	adhesion, err := h.membership.Submit(r.Context(), req)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, map[string]interface{}{"adhesion": adhesion})
}

// GET /api/admin/adhesions?status=
func (h *AdhesionHandler) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.membership.List(r.Context(), utils.GetQueryParam(r, "status", ""))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteListResponse(w, requests, len(requests))
}

// GET /api/admin/adhesions/{id}
func (h *AdhesionHandler) Get(w http.ResponseWriter, r *http.Request) {
	adhesion, err := h.membership.Get(r.Context(), chiRoute.URLParam(r, "id"))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, adhesion)
}

// POST /api/admin/adhesions/{id}/validate
func (h *AdhesionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	result, err := h.membership.Validate(r.Context(), chiRoute.URLParam(r, "id"), adminEmail(r))
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

// POST /api/admin/adhesions/{id}/reject
func (h *AdhesionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req models.AdhesionRejectRequest
	// 拒绝原因可选，允许空请求体
	if err := utils.DecodeOptionalAndValidate(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	adhesion, err := h.membership.Reject(r.Context(), chiRoute.URLParam(r, "id"), adminEmail(r), req.Reason)
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, adhesion)
}
