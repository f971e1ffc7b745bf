package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-mail-reconciler-go/internal/export"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/service/ledger"
)

// PostCharge appends a rent, late fee or utility charge
func (h *Handlers) PostCharge(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var req ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if !req.Type.IsCharge() {
		abort(c, http.StatusBadRequest, "validation_error", "type must be rent_charge, late_fee or utility_charge")
		return
	}

	entry, err := h.ledger.PostCharge(c.Request.Context(), ledger.ChargeInput{
		TenantID:    id,
		Type:        req.Type,
		Amount:      req.Amount,
		Period:      model.Period(req.Period),
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err, "post charge")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// RecordPayment records a manual payment and resolves notices it clears
func (h *Handlers) RecordPayment(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if !req.Method.Valid() {
		abort(c, http.StatusBadRequest, "validation_error", "unknown payment method")
		return
	}

	in := ledger.PaymentInput{
		TenantID: id,
		Amount:   req.Amount,
		Method:   req.Method,
		Note:     req.Note,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}

	rec, err := h.ledger.RecordManualPayment(c.Request.Context(), in)
	if err != nil {
		respondError(c, err, "record payment")
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// GetLedger returns a tenant's ledger entries in order
func (h *Handlers) GetLedger(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	tenant, entries, err := h.ledger.Entries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "fetch ledger")
		return
	}

	st := export.NewStatement(*tenant, entries, h.ledger.Location(), h.now())
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	c.JSON(http.StatusOK, LedgerResponse{
		Tenant:  *tenant,
		Balance: st.Balance,
		Entries: entries,
	})
}

// ExportLedger downloads a tenant statement as xlsx (default) or pdf
func (h *Handlers) ExportLedger(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	format := export.Format(c.DefaultQuery("format", string(export.FormatXLSX)))
	if format != export.FormatXLSX && format != export.FormatPDF {
		abort(c, http.StatusBadRequest, "invalid_format", "format must be xlsx or pdf")
		return
	}

	tenant, entries, err := h.ledger.Entries(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "fetch ledger")
		return
	}

	st := export.NewStatement(*tenant, entries, h.ledger.Location(), h.now())
	data, err := export.Render(st, format)
	if err != nil {
		respondError(c, err, "render statement")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+st.Filename(format)+`"`)
	c.Data(http.StatusOK, format.ContentType(), data)
}
