package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Tenant represents a person renting a unit
type Tenant struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Name      string         `json:"name" gorm:"type:varchar(255);not null"`
	Email     string         `json:"email" gorm:"type:varchar(255)"`
	Phone     string         `json:"phone" gorm:"type:varchar(50)"`
	Status    TenantStatus   `json:"status" gorm:"type:varchar(20);not null;default:active;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Leases []Lease `json:"leases,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name for Tenant
func (Tenant) TableName() string {
	return "tenants"
}

// Lease binds a tenant to a unit for a date range
type Lease struct {
	ID          uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID    uint            `json:"tenant_id" gorm:"not null;index"`
	PropertyID  uint            `json:"property_id" gorm:"not null;index"`
	Unit        string          `json:"unit" gorm:"type:varchar(50)"`
	MonthlyRent decimal.Decimal `json:"monthly_rent" gorm:"type:decimal(12,2);not null"`
	StartDate   time.Time       `json:"start_date" gorm:"not null"`
	EndDate     *time.Time      `json:"end_date"`
	Status      LeaseStatus     `json:"status" gorm:"type:varchar(20);not null;default:active;index"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Tenant *Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// TableName specifies the table name for Lease
func (Lease) TableName() string {
	return "leases"
}

// ActiveAt reports whether the lease is in force at t.
func (l Lease) ActiveAt(t time.Time) bool {
	if l.Status != LeaseActive || l.StartDate.After(t) {
		return false
	}
	return l.EndDate == nil || !l.EndDate.Before(t)
}

// PayerAlias maps a payer name seen on a processor to a tenant
type PayerAlias struct {
	ID        uint          `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  uint          `json:"tenant_id" gorm:"not null;index"`
	Method    PaymentMethod `json:"method" gorm:"type:varchar(20);not null;uniqueIndex:idx_payer_alias"`
	PayerName string        `json:"payer_name" gorm:"type:varchar(255);not null;uniqueIndex:idx_payer_alias"`
	CreatedAt time.Time     `json:"created_at"`
}

// TableName specifies the table name for PayerAlias
func (PayerAlias) TableName() string {
	return "payer_aliases"
}
