package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
)

// GetAuditEvents returns audit events newest first with pagination
func (h *Handlers) GetAuditEvents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	f := repository.AuditFilter{
		Action: c.Query("action"),
		Page:   page,
		Limit:  limit,
	}
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_id", "Invalid tenant ID")
			return
		}
		tid := uint(id)
		f.TenantID = &tid
	}
	f.Normalize()

	events, total, err := h.store.ListAuditEvents(c.Request.Context(), f)
	if err != nil {
		respondError(c, err, "fetch audit events")
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"pagination": gin.H{
			"page":  f.Page,
			"limit": f.Limit,
			"total": total,
		},
	})
}
