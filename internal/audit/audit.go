// Package audit builds the append-only event records emitted for
// payments, charges and notice resolutions.
package audit

import (
	"fmt"

	"gorm.io/datatypes"

	"payment-mail-reconciler-go/internal/model"
)

// Actions recorded by this service.
const (
	ActionPaymentImported = "payment_imported"
	ActionPaymentRecorded = "payment_recorded"
	ActionChargePosted    = "charge_posted"
	ActionNoticeResolved  = "notice_auto_resolved"
	ActionPayerAliasAdded = "payer_alias_added"
)

// PaymentCreated describes a newly persisted payment and its ledger entry.
func PaymentCreated(p *model.Payment, entry *model.LedgerEntry, runID string) *model.AuditEvent {
	action := ActionPaymentRecorded
	desc := fmt.Sprintf("Recorded %s payment of %s", p.Method, p.Amount.StringFixed(2))
	if p.Source == model.SourceEmailImport {
		action = ActionPaymentImported
		desc = fmt.Sprintf("Imported %s payment of %s from %s", p.Method, p.Amount.StringFixed(2), displayPayer(p.PayerName))
	}

	meta := datatypes.JSONMap{
		"payment_id": p.ID,
		"amount":     p.Amount.StringFixed(2),
		"method":     string(p.Method),
		"source":     string(p.Source),
		"status":     string(p.Status),
		"period":     entry.Period.String(),
		"balance":    entry.Balance.StringFixed(2),
	}
	if p.ExternalID != nil {
		meta["external_id"] = *p.ExternalID
	}
	if p.MessageID != "" {
		meta["account_id"] = p.AccountID
		meta["message_id"] = p.MessageID
	}
	if runID != "" {
		meta["run_id"] = runID
	}
	return &model.AuditEvent{
		Action:      action,
		Description: desc,
		Metadata:    meta,
		TenantID:    uintPtr(p.TenantID),
	}
}

// ChargePosted describes a charge appended to a ledger.
func ChargePosted(e *model.LedgerEntry) *model.AuditEvent {
	return &model.AuditEvent{
		Action:      ActionChargePosted,
		Description: fmt.Sprintf("Posted %s of %s for %s", e.Type, e.Amount.StringFixed(2), e.Period),
		Metadata: datatypes.JSONMap{
			"entry_id": e.ID,
			"type":     string(e.Type),
			"amount":   e.Amount.StringFixed(2),
			"period":   e.Period.String(),
			"balance":  e.Balance.StringFixed(2),
		},
		TenantID: uintPtr(e.TenantID),
	}
}

// NoticeResolved describes a notice acknowledged because its period is paid.
func NoticeResolved(n *model.Notice, period model.Period, charged, paid string) *model.AuditEvent {
	return &model.AuditEvent{
		Action:      ActionNoticeResolved,
		Description: fmt.Sprintf("Acknowledged %s notice %d: %s fully paid", n.Type, n.ID, period),
		Metadata: datatypes.JSONMap{
			"notice_id":       n.ID,
			"notice_type":     string(n.Type),
			"previous_status": string(n.Status),
			"period":          period.String(),
			"charged":         charged,
			"paid":            paid,
		},
		TenantID: uintPtr(n.TenantID),
	}
}

// PayerAliasAdded describes an operator-maintained payer mapping.
func PayerAliasAdded(a *model.PayerAlias) *model.AuditEvent {
	return &model.AuditEvent{
		Action:      ActionPayerAliasAdded,
		Description: fmt.Sprintf("Mapped %s payer %q to tenant %d", a.Method, a.PayerName, a.TenantID),
		Metadata: datatypes.JSONMap{
			"alias_id":   a.ID,
			"method":     string(a.Method),
			"payer_name": a.PayerName,
		},
		TenantID: uintPtr(a.TenantID),
	}
}

func displayPayer(name string) string {
	if name == "" {
		return "unknown payer"
	}
	return name
}

func uintPtr(v uint) *uint {
	return &v
}
