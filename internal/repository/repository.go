// Package repository persists tenants, payments, ledger entries, notices
// and audit events.
package repository

import (
	"context"
	"time"

	"payment-mail-reconciler-go/internal/model"
)

// Tx is the store as seen inside a tenant transaction. Every write made
// through it commits or rolls back together.
type Tx interface {
	// LastEntry returns the tenant's most recent ledger entry, or nil.
	LastEntry(ctx context.Context) (*model.LedgerEntry, error)
	CreatePayment(ctx context.Context, p *model.Payment) error
	CreateEntry(ctx context.Context, e *model.LedgerEntry) error
	RecordAudit(ctx context.Context, ev *model.AuditEvent) error
}

// NoticeFilter selects notices. Zero fields do not filter.
type NoticeFilter struct {
	TenantID      uint
	Types         []model.NoticeType
	Statuses      []model.NoticeStatus
	CreatedFrom   time.Time
	CreatedBefore time.Time
}

// AuditFilter selects a page of audit events, newest first.
type AuditFilter struct {
	TenantID *uint
	Action   string
	Page     int
	Limit    int
}

// Store is everything the services need from persistence.
type Store interface {
	// InTenantTx runs fn in a transaction holding the tenant's row lock, so
	// ledger appends for one tenant are serialized.
	InTenantTx(ctx context.Context, tenantID uint, fn func(tx Tx) error) error

	GetTenant(ctx context.Context, id uint) (*model.Tenant, error)
	FindPaymentByExternalID(ctx context.Context, method model.PaymentMethod, externalID string) (*model.Payment, error)
	ListEntries(ctx context.Context, tenantID uint) ([]model.LedgerEntry, error)
	ListEntriesForPeriod(ctx context.Context, tenantID uint, period model.Period) ([]model.LedgerEntry, error)

	ListNotices(ctx context.Context, f NoticeFilter) ([]model.Notice, error)
	// AcknowledgeNotice moves a notice to acknowledged only if its status
	// is one of from. It reports whether the notice changed.
	AcknowledgeNotice(ctx context.Context, id uint, from []model.NoticeStatus, at time.Time) (bool, error)

	ListActiveLeases(ctx context.Context, at time.Time) ([]model.Lease, error)
	ListPayerAliases(ctx context.Context) ([]model.PayerAlias, error)
	ListPayerHistory(ctx context.Context) ([]model.PayerHistory, error)
	CreatePayerAlias(ctx context.Context, a *model.PayerAlias) error

	RecordAudit(ctx context.Context, ev *model.AuditEvent) error
	ListAuditEvents(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int64, error)

	Ping(ctx context.Context) error
}

// Normalize clamps paging to 1..100 per page with 50 as the default.
func (f *AuditFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 50
	}
}
