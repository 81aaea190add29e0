package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kurswerk/backend/internal/services"
)

type AdminHandler struct {
	auditService *services.AuditService
}

func NewAdminHandler(auditService *services.AuditService) *AdminHandler {
	return &AdminHandler{auditService: auditService}
}

// GetAuditLog returns recent admin actions, newest first
// GET /admin/audit?page=1&limit=50&adminId=&action=
func (h *AdminHandler) GetAuditLog(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	var adminID *uuid.UUID
	if v := c.Query("adminId"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			adminID = &id
		}
	}

	logs, total, err := h.auditService.GetRecentActions(page, limit, adminID, c.Query("action"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}
