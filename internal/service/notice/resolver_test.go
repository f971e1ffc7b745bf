package notice

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-mail-reconciler-go/internal/audit"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
	"payment-mail-reconciler-go/internal/repository/memory"
)

func appendEntry(t *testing.T, s *memory.Store, tenantID uint, typ model.EntryType, amount string, period model.Period) {
	t.Helper()
	ctx := context.Background()
	err := s.InTenantTx(ctx, tenantID, func(tx repository.Tx) error {
		last, err := tx.LastEntry(ctx)
		if err != nil {
			return err
		}
		balance := decimal.Zero
		if last != nil {
			balance = last.Balance
		}
		amt := decimal.RequireFromString(amount)
		return tx.CreateEntry(ctx, &model.LedgerEntry{
			TenantID: tenantID, Type: typ, Amount: amt, Period: period, Balance: balance.Add(amt),
		})
	})
	require.NoError(t, err)
}

func march(day int) time.Time {
	return time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC)
}

func TestResolveIfPaidNoCharges(t *testing.T) {
	s := memory.NewStore()
	tenant := s.AddTenant("Jane Doe")
	appendEntry(t, s, tenant.ID, model.EntryPayment, "-100.00", "2024-03")
	s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeSent, CreatedAt: march(5)})

	res, err := NewResolver(s, time.UTC, nil).ResolveIfPaid(context.Background(), tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Resolved)
	assert.Empty(t, res.NoticeIDs)
}

func TestResolveIfPaidCoverageGating(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	tenant := s.AddTenant("Jane Doe")
	other := s.AddTenant("John Smith")

	appendEntry(t, s, tenant.ID, model.EntryRentCharge, "1200.00", "2024-03")
	appendEntry(t, s, tenant.ID, model.EntryLateFee, "50.00", "2024-03")
	appendEntry(t, s, tenant.ID, model.EntryPayment, "-1249.99", "2024-03")

	lateRent := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeSent, CreatedAt: march(5)})
	eviction := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeEvictionWarning, Status: model.NoticeServed, CreatedAt: march(20)})
	violation := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLeaseViolation, Status: model.NoticeSent, CreatedAt: march(6)})
	draft := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeDraft, CreatedAt: march(7)})
	april := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeSent, CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)})
	otherTenant := s.AddNotice(model.Notice{TenantID: other.ID, Type: model.NoticeLateRent, Status: model.NoticeSent, CreatedAt: march(5)})

	r := NewResolver(s, time.UTC, nil)

	res, err := r.ResolveIfPaid(ctx, tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Resolved, "one cent short resolves nothing")

	appendEntry(t, s, tenant.ID, model.EntryPayment, "-0.01", "2024-03")

	res, err = r.ResolveIfPaid(ctx, tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, []uint{lateRent.ID, eviction.ID}, res.NoticeIDs)
	assert.True(t, decimal.RequireFromString("1250").Equal(res.Charged))
	assert.True(t, decimal.RequireFromString("1250").Equal(res.Paid))

	for _, id := range []uint{lateRent.ID, eviction.ID} {
		n, _ := s.Notice(id)
		assert.Equal(t, model.NoticeAcknowledged, n.Status)
		assert.NotNil(t, n.AcknowledgedAt)
	}
	for _, id := range []uint{violation.ID, draft.ID, april.ID, otherTenant.ID} {
		n, _ := s.Notice(id)
		assert.NotEqual(t, model.NoticeAcknowledged, n.Status)
	}

	events, total, err := s.ListAuditEvents(ctx, repository.AuditFilter{Action: audit.ActionNoticeResolved})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, events, 2)

	res, err = r.ResolveIfPaid(ctx, tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Resolved)
}

func TestResolveIfPaidUsesLedgerTimezone(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	s := memory.NewStore()
	tenant := s.AddTenant("Jane Doe")
	appendEntry(t, s, tenant.ID, model.EntryRentCharge, "1000", "2024-03")
	appendEntry(t, s, tenant.ID, model.EntryPayment, "-1000", "2024-03")

	// 2024-04-01 02:00 UTC is still March 31 in New York.
	n := s.AddNotice(model.Notice{TenantID: tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeSent,
		CreatedAt: time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)})

	res, err := NewResolver(s, loc, nil).ResolveIfPaid(ctx, tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, []uint{n.ID}, res.NoticeIDs)
}

func TestResolveIfPaidInvalidPeriod(t *testing.T) {
	_, err := NewResolver(memory.NewStore(), nil, nil).ResolveIfPaid(context.Background(), 1, "2024-13")
	assert.ErrorIs(t, err, model.ErrInvalidPeriod)
}
