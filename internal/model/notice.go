package model

import (
	"time"

	"gorm.io/datatypes"
)

// Notice is an enforcement communication sent to a tenant
type Notice struct {
	ID             uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID       uint         `json:"tenant_id" gorm:"not null;index"`
	Type           NoticeType   `json:"type" gorm:"type:varchar(30);not null"`
	Status         NoticeStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at"`
	CreatedAt      time.Time    `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TableName specifies the table name for Notice
func (Notice) TableName() string {
	return "notices"
}

// AuditEvent is an immutable record of something the system did.
// Rows are inserted only; nothing updates or deletes them.
type AuditEvent struct {
	ID          uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	Action      string            `json:"action" gorm:"type:varchar(100);not null;index"`
	Description string            `json:"description" gorm:"type:text"`
	Metadata    datatypes.JSONMap `json:"metadata" gorm:"type:json"`
	TenantID    *uint             `json:"tenant_id" gorm:"index"`
	PropertyID  *uint             `json:"property_id" gorm:"index"`
	CreatedAt   time.Time         `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for AuditEvent
func (AuditEvent) TableName() string {
	return "audit_events"
}
