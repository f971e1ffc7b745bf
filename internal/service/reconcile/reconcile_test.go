package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-mail-reconciler-go/internal/lock"
	"payment-mail-reconciler-go/internal/mailbox"
	"payment-mail-reconciler-go/internal/matcher"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/parser"
	"payment-mail-reconciler-go/internal/repository"
	"payment-mail-reconciler-go/internal/repository/memory"
	"payment-mail-reconciler-go/internal/service/ledger"
	"payment-mail-reconciler-go/internal/service/reconcile/mocks"
	"payment-mail-reconciler-go/internal/service/notice"
)

const zelleSender = "no-reply@zellepay.com"

func zelleEmail(account, id, payer, amount, ref, note string) mailbox.FetchedEmail {
	subject := fmt.Sprintf("You received $%s from %s", amount, payer)
	body := fmt.Sprintf("Memo: %s\r\nConfirmation number: %s\r\n", note, ref)
	raw := "From: " + zelleSender + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: Fri, 15 Mar 2024 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" + body
	return mailbox.FetchedEmail{
		AccountID:  account,
		MessageID:  id,
		From:       zelleSender,
		Subject:    subject,
		ReceivedAt: time.Date(2024, 3, 15, 10, 0, 5, 0, time.UTC),
		Raw:        []byte(raw),
	}
}

func otherEmail(account, id, from, subject string) mailbox.FetchedEmail {
	raw := "From: " + from + "\r\nSubject: " + subject + "\r\n\r\nhello\r\n"
	return mailbox.FetchedEmail{AccountID: account, MessageID: id, From: from, Subject: subject, Raw: []byte(raw)}
}

type fixture struct {
	store    *memory.Store
	mailbox  *mocks.MockMailbox
	resolver *notice.Resolver
	tenant   model.Tenant
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	store := memory.NewStore()
	tenant := store.AddTenant("Jane Doe")
	store.AddLease(model.Lease{
		TenantID:    tenant.ID,
		MonthlyRent: decimal.RequireFromString("1200.00"),
		StartDate:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	p, err := parser.New(map[string]string{zelleSender: "zelle"}, time.UTC)
	require.NoError(t, err)

	resolver := notice.NewResolver(store, time.UTC, nil)
	mb := mocks.NewMockMailbox(ctrl)
	return &fixture{
		store:    store,
		mailbox:  mb,
		resolver: resolver,
		tenant:   tenant,
		deps: Deps{
			Mailbox:  mb,
			Parser:   p,
			Matcher:  matcher.New(store, matcher.Options{}),
			Ledger:   ledger.NewService(store, resolver, time.UTC),
			Payments: store,
			Resolver: resolver,
			Locker:   lock.NewLocalLocker(),
		},
	}
}

func (f *fixture) fetchReturns(emails ...mailbox.FetchedEmail) *gomock.Call {
	return f.mailbox.EXPECT().FetchUnread(gomock.Any()).Return(&mailbox.FetchResult{Emails: emails}, nil)
}

func (f *fixture) postRent(t *testing.T, amount string, period model.Period) {
	t.Helper()
	_, err := f.deps.Ledger.(*ledger.Service).PostCharge(context.Background(), ledger.ChargeInput{
		TenantID: f.tenant.ID, Type: model.EntryRentCharge, Amount: decimal.RequireFromString(amount), Period: period,
	})
	require.NoError(t, err)
}

func TestScanScenarioThenResolve(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.postRent(t, "1200.00", "2024-03")
	n := f.store.AddNotice(model.Notice{TenantID: f.tenant.ID, Type: model.NoticeLateRent, Status: model.NoticeSent,
		CreatedAt: time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)})

	deps := f.deps
	deps.Resolver = nil
	svc := NewService(deps, Options{})

	f.fetchReturns(zelleEmail("primary", "101", "Jane Doe", "1,200.00", "TX-001", "march rent"))
	res, err := svc.ScanAndCreatePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EmailsScanned)
	assert.Equal(t, 1, res.PaymentsParsed)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 0, res.Unmatched)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "TX-001", *payments[0].ExternalID)
	assert.Equal(t, model.PaymentPending, payments[0].Status)
	assert.Equal(t, model.SourceEmailImport, payments[0].Source)

	resolution, err := f.resolver.ResolveIfPaid(ctx, f.tenant.ID, "2024-03")
	require.NoError(t, err)
	assert.Equal(t, 1, resolution.Resolved)
	assert.Equal(t, []uint{n.ID}, resolution.NoticeIDs)
}

func TestScanResolvesAffectedPeriods(t *testing.T) {
	f := newFixture(t)
	f.postRent(t, "1200.00", "2024-03")
	n := f.store.AddNotice(model.Notice{TenantID: f.tenant.ID, Type: model.NoticeEvictionWarning, Status: model.NoticeServed,
		CreatedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)})

	f.fetchReturns(zelleEmail("primary", "101", "Jane Doe", "1,200.00", "TX-001", "rent"))
	res, err := NewService(f.deps, Options{}).ScanAndCreatePayments(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Resolutions, 1)
	assert.Equal(t, model.Period("2024-03"), res.Resolutions[0].Period)
	assert.Equal(t, []uint{n.ID}, res.Resolutions[0].NoticeIDs)

	got, _ := f.store.Notice(n.ID)
	assert.Equal(t, model.NoticeAcknowledged, got.Status)
}

func TestScanIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emails := []mailbox.FetchedEmail{
		zelleEmail("primary", "1", "Jane Doe", "600.00", "ZA0001", "half"),
		zelleEmail("backup", "7", "Jane Doe", "600.00", "ZA0002", "other half"),
	}
	f.fetchReturns(emails...).Times(2)
	svc := NewService(f.deps, Options{})

	first, err := svc.ScanAndCreatePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, first.Duplicates)

	second, err := svc.ScanAndCreatePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, first.Created, second.Duplicates)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Len(t, f.store.Payments(), 2)

	entries, err := f.store.ListEntries(ctx, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, decimal.RequireFromString("-1200").Equal(entries[1].Balance))
}

func TestScanDeduplicatesWithinBatch(t *testing.T) {
	f := newFixture(t)
	f.fetchReturns(
		zelleEmail("primary", "1", "Jane Doe", "100.00", "SAME-01", "first note"),
		zelleEmail("backup", "2", "Jane Doe", "100.00", "SAME-01", "second note"),
	)

	res, err := NewService(f.deps, Options{}).ScanAndCreatePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, OutcomeCreated, res.Items[0].Outcome)
	assert.Equal(t, OutcomeDuplicate, res.Items[1].Outcome)

	payments := f.store.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, "first note", payments[0].Note)
}

func TestScanMarksOnlyPersistedEmailsRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	existing := zelleEmail("primary", "1", "Jane Doe", "50.00", "OLD-001", "")
	created := zelleEmail("primary", "2", "Jane Doe", "75.00", "NEW-001", "")
	unmatched := zelleEmail("primary", "3", "Somebody Else", "75.00", "UNK-001", "")
	unknown := otherEmail("primary", "4", "newsletter@example.com", "Weekly digest")
	backup := zelleEmail("backup", "5", "Jane Doe", "20.00", "BAK-001", "")

	svc := NewService(f.deps, Options{MarkRead: true})

	// Seed the first payment through a prior run.
	f.fetchReturns(existing)
	f.mailbox.EXPECT().MarkRead(gomock.Any(), "primary", "1").Return(nil)
	_, err := svc.ScanAndCreatePayments(ctx)
	require.NoError(t, err)

	// One call per account, after every payment is committed.
	f.fetchReturns(existing, created, unmatched, unknown, backup)
	f.mailbox.EXPECT().MarkRead(gomock.Any(), "primary", "1", "2").Return(nil)
	f.mailbox.EXPECT().MarkRead(gomock.Any(), "backup", "5").Return(errors.New("connection reset"))

	res, err := svc.ScanAndCreatePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, res.EmailsScanned)
	assert.Equal(t, 4, res.PaymentsParsed)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Unmatched)
	assert.Equal(t, 1, res.Skipped)

	outcomes := make([]Outcome, len(res.Items))
	marked := make([]bool, len(res.Items))
	for i, it := range res.Items {
		outcomes[i] = it.Outcome
		marked[i] = it.MarkedRead
	}
	assert.Equal(t, []Outcome{OutcomeDuplicate, OutcomeCreated, OutcomeUnmatched, OutcomeNotRecognized, OutcomeCreated}, outcomes)
	assert.Equal(t, []bool{true, true, false, false, false}, marked)

	require.Len(t, res.UnmatchedPayments, 1)
	assert.Equal(t, "Somebody Else", res.UnmatchedPayments[0].PayerName)
	assert.Equal(t, "UNK-001", res.UnmatchedPayments[0].ExternalID)
	assert.Len(t, f.store.Payments(), 3)
}

func TestScanSkipsMalformedAndReportsAccountFailures(t *testing.T) {
	f := newFixture(t)
	zero := zelleEmail("primary", "1", "Jane Doe", "0.00", "ZERO-01", "")
	good := zelleEmail("primary", "2", "Jane Doe", "10.00", "GOOD-01", "")
	f.mailbox.EXPECT().FetchUnread(gomock.Any()).Return(&mailbox.FetchResult{
		Emails:   []mailbox.FetchedEmail{zero, good},
		Failures: []mailbox.AccountFailure{{AccountID: "backup", Err: errors.New("dial tcp: i/o timeout")}},
	}, nil)

	res, err := NewService(f.deps, Options{}).ScanAndCreatePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.EmailsScanned)
	assert.Equal(t, 1, res.PaymentsParsed)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, OutcomeMalformed, res.Items[0].Outcome)
	require.Len(t, res.AccountFailures, 1)
	assert.Equal(t, "backup", res.AccountFailures[0].AccountID)
	assert.Contains(t, res.AccountFailures[0].Error, "timeout")
}

func TestScanEmptyMailbox(t *testing.T) {
	f := newFixture(t)
	f.fetchReturns()

	res, err := NewService(f.deps, Options{}).ScanAndCreatePayments(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.EmailsScanned)
	assert.Zero(t, res.PaymentsParsed)
	assert.Zero(t, res.Created)
	assert.Zero(t, res.Duplicates)
	assert.Zero(t, res.Unmatched)
}

func TestScanFetchErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.mailbox.EXPECT().FetchUnread(gomock.Any()).Return(nil, context.Canceled)

	_, err := NewService(f.deps, Options{}).ScanAndCreatePayments(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanStorageFailureAbortsRun(t *testing.T) {
	f := newFixture(t)
	f.store.FailWrites = errors.New("disk full")
	f.fetchReturns(
		zelleEmail("primary", "1", "Jane Doe", "10.00", "FAIL-01", ""),
		zelleEmail("primary", "2", "Jane Doe", "10.00", "FAIL-02", ""),
	)

	res, err := NewService(f.deps, Options{MarkRead: true}).ScanAndCreatePayments(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, res.Created)
	assert.Empty(t, f.store.Payments())
}

// racingStore hides committed payments from the pre-check, as a
// concurrent run would see them.
type racingStore struct {
	*memory.Store
}

func (racingStore) FindPaymentByExternalID(context.Context, model.PaymentMethod, string) (*model.Payment, error) {
	return nil, model.ErrNotFound
}

func TestScanTreatsUniqueViolationAsDuplicate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ext := "RACE-01"
	err := f.store.InTenantTx(ctx, f.tenant.ID, func(tx repository.Tx) error {
		return tx.CreatePayment(ctx, &model.Payment{TenantID: f.tenant.ID, Method: model.MethodZelle, ExternalID: &ext})
	})
	require.NoError(t, err)

	deps := f.deps
	deps.Payments = racingStore{f.store}
	f.fetchReturns(zelleEmail("primary", "1", "Jane Doe", "10.00", ext, ""))

	res, err := NewService(deps, Options{}).ScanAndCreatePayments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Duplicates)
}

func TestScanRejectsOverlappingRuns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	locker := lock.NewLocalLocker()
	held, err := locker.Obtain(ctx, "scan", time.Minute)
	require.NoError(t, err)

	deps := f.deps
	deps.Locker = locker
	svc := NewService(deps, Options{LockKey: "scan"})

	_, err = svc.ScanAndCreatePayments(ctx)
	assert.ErrorIs(t, err, ErrScanInProgress)

	require.NoError(t, held.Release(ctx))
	f.fetchReturns()
	_, err = svc.ScanAndCreatePayments(ctx)
	assert.NoError(t, err)
}

type panickingParser struct{}

func (panickingParser) Parse(string, []byte, time.Time) parser.Result {
	panic("boom")
}

func TestScanRecoversParserPanic(t *testing.T) {
	f := newFixture(t)
	deps := f.deps
	deps.Parser = panickingParser{}
	f.fetchReturns(zelleEmail("primary", "1", "Jane Doe", "10.00", "P-0001", ""))

	res, err := NewService(deps, Options{}).ScanAndCreatePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMalformed, res.Items[0].Outcome)
	assert.True(t, strings.Contains(res.Items[0].Reason, "boom"))
}
