package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/userhub-io/userhub-api/internal/service"
	"github.com/userhub-io/userhub-api/pkg/response"
)

// AdminHandler serves dashboard aggregates and audit trails.
type AdminHandler struct {
	dashboard *service.DashboardService
	users     *service.UserService
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(dashboard *service.DashboardService, users *service.UserService) *AdminHandler {
	return &AdminHandler{dashboard: dashboard, users: users}
}

// Stats godoc
// @Summary User statistics
// @Description Aggregated user counts for the admin dashboard
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.dashboard.UserStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// AuditLogs godoc
// @Summary Recent audit logs
// @Description Latest audit trail entries, newest first
// @Tags Admin
// @Produce json
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := h.users.RecentAuditLogs(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
