// Package notice clears enforcement notices once a tenant's charges for a
// billing period are fully paid.
package notice

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/audit"
	"payment-mail-reconciler-go/internal/metrics"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
)

// ResolvableTypes are the notice types a full payment clears.
var ResolvableTypes = []model.NoticeType{model.NoticeLateRent, model.NoticeEvictionWarning}

// ResolvableStatuses are the states a notice may be acknowledged from.
var ResolvableStatuses = []model.NoticeStatus{model.NoticeSent, model.NoticeServed}

// Store is the persistence the resolver needs.
type Store interface {
	ListEntriesForPeriod(ctx context.Context, tenantID uint, period model.Period) ([]model.LedgerEntry, error)
	ListNotices(ctx context.Context, f repository.NoticeFilter) ([]model.Notice, error)
	AcknowledgeNotice(ctx context.Context, id uint, from []model.NoticeStatus, at time.Time) (bool, error)
	RecordAudit(ctx context.Context, ev *model.AuditEvent) error
}

// Resolution reports which notices were acknowledged.
type Resolution struct {
	Resolved  int             `json:"resolved"`
	NoticeIDs []uint          `json:"noticeIds"`
	Charged   decimal.Decimal `json:"charged"`
	Paid      decimal.Decimal `json:"paid"`
}

// Resolver acknowledges notices for fully paid periods.
type Resolver struct {
	store   Store
	loc     *time.Location
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewResolver creates a resolver evaluating period bounds in loc.
func NewResolver(store Store, loc *time.Location, m *metrics.Metrics) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{store: store, loc: loc, metrics: m, now: time.Now}
}

// ResolveIfPaid acknowledges the tenant's sent or served late-rent and
// eviction-warning notices created in period, provided payments recorded
// for the period cover its charges. Partial payment resolves nothing.
func (r *Resolver) ResolveIfPaid(ctx context.Context, tenantID uint, period model.Period) (*Resolution, error) {
	res := &Resolution{NoticeIDs: []uint{}, Charged: decimal.Zero, Paid: decimal.Zero}

	start, end, err := period.Bounds(r.loc)
	if err != nil {
		return nil, err
	}

	entries, err := r.store.ListEntriesForPeriod(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger for %s: %w", period, err)
	}
	for _, e := range entries {
		switch {
		case e.Type.IsCharge():
			res.Charged = res.Charged.Add(e.Amount)
		case e.Type == model.EntryPayment:
			res.Paid = res.Paid.Add(e.Amount.Abs())
		}
	}

	log := logrus.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"period":    period,
		"charged":   res.Charged.StringFixed(2),
		"paid":      res.Paid.StringFixed(2),
	})
	if !res.Charged.IsPositive() {
		log.Debug("No charges in period, nothing to resolve")
		return res, nil
	}
	if res.Paid.LessThan(res.Charged) {
		log.Debug("Period not fully paid")
		return res, nil
	}

	notices, err := r.store.ListNotices(ctx, repository.NoticeFilter{
		TenantID:      tenantID,
		Types:         ResolvableTypes,
		Statuses:      ResolvableStatuses,
		CreatedFrom:   start,
		CreatedBefore: end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}

	for i := range notices {
		n := &notices[i]
		changed, err := r.store.AcknowledgeNotice(ctx, n.ID, ResolvableStatuses, r.now())
		if err != nil {
			return res, err
		}
		if !changed {
			continue
		}
		res.Resolved++
		res.NoticeIDs = append(res.NoticeIDs, n.ID)

		ev := audit.NoticeResolved(n, period, res.Charged.StringFixed(2), res.Paid.StringFixed(2))
		if err := r.store.RecordAudit(ctx, ev); err != nil {
			return res, err
		}
	}

	r.metrics.NoticesAcknowledged(res.Resolved)
	if res.Resolved > 0 {
		log.Infof("Acknowledged %d notice(s)", res.Resolved)
	}
	return res, nil
}
