package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-mail-reconciler-go/internal/model"
)

// ResolveNotices acknowledges a tenant's outstanding notices for a period
// once its charges are paid. The period defaults to the current month.
func (h *Handlers) ResolveNotices(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	period := model.PeriodOf(h.now(), h.ledger.Location())
	if raw := c.Query("period"); raw != "" {
		p, err := model.ParsePeriod(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_period", "period must be YYYY-MM")
			return
		}
		period = p
	}

	if _, err := h.store.GetTenant(c.Request.Context(), id); err != nil {
		respondError(c, err, "fetch tenant")
		return
	}

	res, err := h.resolver.ResolveIfPaid(c.Request.Context(), id, period)
	if err != nil {
		respondError(c, err, "resolve notices")
		return
	}

	c.JSON(http.StatusOK, ResolveResponse{Resolved: res.Resolved, NoticeIDs: res.NoticeIDs})
}
