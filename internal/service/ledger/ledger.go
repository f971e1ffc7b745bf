// Package ledger appends charges and payments to tenant ledgers while
// keeping every entry's running balance consistent.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/audit"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
	"payment-mail-reconciler-go/internal/service/notice"
)

// Store is the persistence the ledger needs.
type Store interface {
	InTenantTx(ctx context.Context, tenantID uint, fn func(tx repository.Tx) error) error
	GetTenant(ctx context.Context, id uint) (*model.Tenant, error)
	ListEntries(ctx context.Context, tenantID uint) ([]model.LedgerEntry, error)
}

// Resolver clears notices after a payment completes a period.
type Resolver interface {
	ResolveIfPaid(ctx context.Context, tenantID uint, period model.Period) (*notice.Resolution, error)
}

// Service posts ledger entries.
type Service struct {
	store    Store
	resolver Resolver
	loc      *time.Location
	now      func() time.Time
}

// NewService creates a ledger service. Periods are computed in loc.
func NewService(store Store, resolver Resolver, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, resolver: resolver, loc: loc, now: time.Now}
}

// Location returns the ledger time zone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ChargeInput is a charge to post.
type ChargeInput struct {
	TenantID    uint
	Type        model.EntryType
	Amount      decimal.Decimal
	Period      model.Period
	Description string
}

// PaymentInput is a payment to record together with its ledger entry.
type PaymentInput struct {
	TenantID   uint
	Amount     decimal.Decimal
	Method     model.PaymentMethod
	Date       time.Time
	Note       string
	ExternalID string
	Status     model.PaymentStatus
	Source     model.PaymentSource
	PayerName  string
	AccountID  string
	MessageID  string
	RunID      string
}

// Recorded is the result of recording a payment.
type Recorded struct {
	Payment    *model.Payment     `json:"payment"`
	Entry      *model.LedgerEntry `json:"entry"`
	Resolution *notice.Resolution `json:"resolution,omitempty"`
}

// PostCharge appends a charge. An empty period means the current one.
func (s *Service) PostCharge(ctx context.Context, in ChargeInput) (*model.LedgerEntry, error) {
	if !in.Type.IsCharge() {
		return nil, fmt.Errorf("entry type %q is not a charge", in.Type)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: charge must be positive", model.ErrInvalidAmount)
	}
	period := in.Period
	if period == "" {
		period = model.PeriodOf(s.now(), s.loc)
	} else if _, err := model.ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	desc := in.Description
	if desc == "" {
		desc = fmt.Sprintf("%s for %s", in.Type, period)
	}

	var entry *model.LedgerEntry
	err := s.store.InTenantTx(ctx, in.TenantID, func(tx repository.Tx) error {
		var err error
		entry, err = appendEntry(ctx, tx, &model.LedgerEntry{
			TenantID:    in.TenantID,
			Type:        in.Type,
			Amount:      in.Amount.Round(2),
			Description: desc,
			Period:      period,
		})
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.ChargePosted(entry))
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordPayment inserts the payment and its PAYMENT entry atomically under
// the tenant's lock. It returns model.ErrDuplicatePayment when the
// (external id, method) pair already exists.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*Recorded, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment must be positive", model.ErrInvalidAmount)
	}
	if !in.Method.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", in.Method)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	if in.Status == "" {
		in.Status = model.PaymentPending
	}

	amount := in.Amount.Round(2)
	payment := &model.Payment{
		TenantID:  in.TenantID,
		Amount:    amount,
		Method:    in.Method,
		Date:      in.Date,
		Note:      in.Note,
		Status:    in.Status,
		Source:    in.Source,
		PayerName: in.PayerName,
		AccountID: in.AccountID,
		MessageID: in.MessageID,
	}
	if in.ExternalID != "" {
		ext := in.ExternalID
		payment.ExternalID = &ext
	}

	var entry *model.LedgerEntry
	err := s.store.InTenantTx(ctx, in.TenantID, func(tx repository.Tx) error {
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		paymentID := payment.ID
		var err error
		entry, err = appendEntry(ctx, tx, &model.LedgerEntry{
			TenantID:    in.TenantID,
			Type:        model.EntryPayment,
			Amount:      amount.Neg(),
			Description: paymentDescription(payment),
			Period:      model.PeriodOf(in.Date, s.loc),
			PaymentID:   &paymentID,
		})
		if err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.PaymentCreated(payment, entry, in.RunID))
	})
	if err != nil {
		return nil, err
	}
	return &Recorded{Payment: payment, Entry: entry}, nil
}

// RecordManualPayment records an operator-entered payment as confirmed and
// then resolves notices for its period.
func (s *Service) RecordManualPayment(ctx context.Context, in PaymentInput) (*Recorded, error) {
	in.Source = model.SourceManual
	in.Status = model.PaymentConfirmed
	in.ExternalID = ""

	rec, err := s.RecordPayment(ctx, in)
	if err != nil {
		return nil, err
	}
	if s.resolver != nil {
		res, err := s.resolver.ResolveIfPaid(ctx, in.TenantID, rec.Entry.Period)
		if err != nil {
			logrus.Errorf("Failed to resolve notices for tenant %d period %s: %v", in.TenantID, rec.Entry.Period, err)
		} else {
			rec.Resolution = res
		}
	}
	return rec, nil
}

// Entries returns a tenant's ledger in append order.
func (s *Service) Entries(ctx context.Context, tenantID uint) (*model.Tenant, []model.LedgerEntry, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.store.ListEntries(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	return tenant, entries, nil
}

// Balance returns the balance after the tenant's latest entry.
func (s *Service) Balance(ctx context.Context, tenantID uint) (decimal.Decimal, error) {
	_, entries, err := s.Entries(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(entries) == 0 {
		return decimal.Zero, nil
	}
	return entries[len(entries)-1].Balance, nil
}

// appendEntry sets the entry's balance from the previous entry and
// inserts it. The caller holds the tenant lock.
func appendEntry(ctx context.Context, tx repository.Tx, e *model.LedgerEntry) (*model.LedgerEntry, error) {
	last, err := tx.LastEntry(ctx)
	if err != nil {
		return nil, err
	}
	prev := decimal.Zero
	if last != nil {
		prev = last.Balance
	}
	e.Balance = prev.Add(e.Amount)
	if err := tx.CreateEntry(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func paymentDescription(p *model.Payment) string {
	if p.PayerName != "" {
		return fmt.Sprintf("%s payment from %s", p.Method, p.PayerName)
	}
	return fmt.Sprintf("%s payment", p.Method)
}

// IsDuplicate reports whether err means the payment already exists.
func IsDuplicate(err error) bool {
	return errors.Is(err, model.ErrDuplicatePayment)
}
