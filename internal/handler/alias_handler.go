package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/audit"
	"payment-mail-reconciler-go/internal/matcher"
	"payment-mail-reconciler-go/internal/model"
)

// CreatePayerAlias maps a processor payer name to a tenant
func (h *Handlers) CreatePayerAlias(c *gin.Context) {
	var req PayerAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if !req.Method.Valid() {
		abort(c, http.StatusBadRequest, "validation_error", "unknown payment method")
		return
	}

	name := matcher.NormalizeName(req.PayerName)
	if name == "" {
		abort(c, http.StatusBadRequest, "validation_error", "payer_name must contain letters or digits")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetTenant(ctx, req.TenantID); err != nil {
		respondError(c, err, "fetch tenant")
		return
	}

	alias := &model.PayerAlias{
		TenantID:  req.TenantID,
		Method:    req.Method,
		PayerName: name,
	}
	if err := h.store.CreatePayerAlias(ctx, alias); err != nil {
		respondError(c, err, "create payer alias")
		return
	}

	if err := h.store.RecordAudit(ctx, audit.PayerAliasAdded(alias)); err != nil {
		logrus.Errorf("Failed to audit payer alias %d: %v", alias.ID, err)
	}

	c.JSON(http.StatusCreated, alias)
}
