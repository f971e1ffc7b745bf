package model

// PaymentMethod identifies how money reached the landlord.
type PaymentMethod string

const (
	MethodVenmo   PaymentMethod = "venmo"
	MethodCashApp PaymentMethod = "cash_app"
	MethodZelle   PaymentMethod = "zelle"
	MethodPayPal  PaymentMethod = "paypal"
	MethodCheck   PaymentMethod = "check"
	MethodCash    PaymentMethod = "cash"
	MethodACH     PaymentMethod = "ach"
	MethodOther   PaymentMethod = "other"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodVenmo, MethodCashApp, MethodZelle, MethodPayPal,
		MethodCheck, MethodCash, MethodACH, MethodOther:
		return true
	}
	return false
}

// PaymentStatus is the review state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
)

// PaymentSource records where a payment row came from.
type PaymentSource string

const (
	SourceManual      PaymentSource = "manual"
	SourceEmailImport PaymentSource = "email_import"
)

// EntryType is the kind of a ledger entry.
type EntryType string

const (
	EntryRentCharge    EntryType = "rent_charge"
	EntryLateFee       EntryType = "late_fee"
	EntryUtilityCharge EntryType = "utility_charge"
	EntryPayment       EntryType = "payment"
)

// ChargeTypes are the entry types that increase what a tenant owes.
var ChargeTypes = []EntryType{EntryRentCharge, EntryLateFee, EntryUtilityCharge}

// IsCharge reports whether t is one of ChargeTypes.
func (t EntryType) IsCharge() bool {
	for _, c := range ChargeTypes {
		if t == c {
			return true
		}
	}
	return false
}

// NoticeType classifies an enforcement notice.
type NoticeType string

const (
	NoticeLateRent        NoticeType = "late_rent"
	NoticeEvictionWarning NoticeType = "eviction_warning"
	NoticeLeaseViolation  NoticeType = "lease_violation"
	NoticeOther           NoticeType = "other"
)

// NoticeStatus is the lifecycle state of a notice.
type NoticeStatus string

const (
	NoticeDraft        NoticeStatus = "draft"
	NoticeSent         NoticeStatus = "sent"
	NoticeServed       NoticeStatus = "served"
	NoticeAcknowledged NoticeStatus = "acknowledged"
	NoticeClosed       NoticeStatus = "closed"
)

// TenantStatus marks whether a tenant is current.
type TenantStatus string

const (
	TenantActive   TenantStatus = "active"
	TenantInactive TenantStatus = "inactive"
)

// LeaseStatus marks whether a lease is in force.
type LeaseStatus string

const (
	LeaseActive LeaseStatus = "active"
	LeaseEnded  LeaseStatus = "ended"
)
