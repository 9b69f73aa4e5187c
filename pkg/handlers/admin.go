package handlers

import (
	"context"
	"net/http"
	"time"

	"genalixir-backend/pkg/config"
	"genalixir-backend/pkg/database"
	"genalixir-backend/pkg/logging"
	"genalixir-backend/pkg/models"
	"genalixir-backend/pkg/services"
	"genalixir-backend/pkg/utils"
)

// AdminHandler 管理面板、合同与健康检查
type AdminHandler struct {
	config *config.Config
	db     database.DatabaseInterface
	admin  *services.AdminService
}

func NewAdminHandler(cfg *config.Config, db database.DatabaseInterface, admin *services.AdminService) *AdminHandler {
	return &AdminHandler{config: cfg, db: db, admin: admin}
}

// HealthCheck GET /
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "ok"
	status := http.StatusOK
	if err := h.db.HealthCheck(ctx); err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("⚠️  Database health check failed")
		dbStatus = "unavailable"
		status = http.StatusServiceUnavailable
	}

	payload := map[string]interface{}{
		"service":     "genalixir-backend",
		"status":      dbStatus,
		"environment": h.config.Environment,
		"mail":        h.config.MailEnabled(),
		"time":        time.Now().UTC(),
	}
	if h.config.Debug {
		payload["database"] = database.GetConnectionStats()
	}
	utils.WriteJSONResponse(w, status, payload)
}

// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, stats)
}

// POST /api/admin/contracts/send
func (h *AdminHandler) SendContract(w http.ResponseWriter, r *http.Request) {
	var req models.ContractSendRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}

	if err := h.admin.SendContract(r.Context(), req); err != nil {
		utils.WriteAppError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"sent": true,
		"to":   req.Email,
	})
}
