package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"payment-mail-reconciler-go/internal/model"
)

// ChargeRequest is the body of POST /tenants/:id/charges
type ChargeRequest struct {
	Type        model.EntryType `json:"type" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Period      string          `json:"period"`
	Description string          `json:"description"`
}

// PaymentRequest is the body of POST /tenants/:id/payments
type PaymentRequest struct {
	Amount decimal.Decimal     `json:"amount"`
	Method model.PaymentMethod `json:"method" binding:"required"`
	Date   *time.Time          `json:"date"`
	Note   string              `json:"note"`
}

// PayerAliasRequest is the body of POST /payer-aliases
type PayerAliasRequest struct {
	TenantID  uint                `json:"tenant_id" binding:"required"`
	Method    model.PaymentMethod `json:"method" binding:"required"`
	PayerName string              `json:"payer_name" binding:"required"`
}

// ResolveResponse reports acknowledged notices for a period
type ResolveResponse struct {
	Resolved  int    `json:"resolved"`
	NoticeIDs []uint `json:"noticeIds"`
}

// LedgerResponse is a tenant's ledger with its current balance
type LedgerResponse struct {
	Tenant  model.Tenant        `json:"tenant"`
	Balance decimal.Decimal     `json:"balance"`
	Entries []model.LedgerEntry `json:"entries"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Database  string     `json:"database"`
	Scheduler string     `json:"scheduler"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
