package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is money received from a tenant, entered manually or imported
// from a processor notification email. At most one row exists per
// (external_id, method) when external_id is set.
type Payment struct {
	ID         uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID   uint            `json:"tenant_id" gorm:"not null;index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Method     PaymentMethod   `json:"method" gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_external"`
	Date       time.Time       `json:"date" gorm:"not null;index"`
	Note       string          `json:"note" gorm:"type:text"`
	ExternalID *string         `json:"external_id" gorm:"type:varchar(255);uniqueIndex:idx_payment_external"`
	Status     PaymentStatus   `json:"status" gorm:"type:varchar(20);not null;default:pending"`
	Source     PaymentSource   `json:"source" gorm:"type:varchar(20);not null;index"`
	PayerName  string          `json:"payer_name" gorm:"type:varchar(255)"`
	AccountID  string          `json:"account_id,omitempty" gorm:"type:varchar(100)"`
	MessageID  string          `json:"message_id,omitempty" gorm:"type:varchar(255)"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name for Payment
func (Payment) TableName() string {
	return "payments"
}

// LedgerEntry is one line of a tenant's append-only ledger. Balance is the
// running balance after this entry.
type LedgerEntry struct {
	ID          uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID    uint            `json:"tenant_id" gorm:"not null;index:idx_ledger_tenant_period"`
	Type        EntryType       `json:"type" gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Description string          `json:"description" gorm:"type:varchar(500)"`
	Period      Period          `json:"period" gorm:"type:char(7);not null;index:idx_ledger_tenant_period"`
	Balance     decimal.Decimal `json:"balance" gorm:"type:decimal(12,2);not null"`
	PaymentID   *uint           `json:"payment_id,omitempty" gorm:"uniqueIndex"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName specifies the table name for LedgerEntry
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// PayerHistory is a distinct payer name previously attributed to a tenant
// by an imported payment.
type PayerHistory struct {
	Method    PaymentMethod `json:"method"`
	PayerName string        `json:"payer_name"`
	TenantID  uint          `json:"tenant_id"`
}
