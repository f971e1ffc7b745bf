// Package reconcile runs the scan, parse, match and persist pipeline that
// turns payment notification emails into ledger records.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/lock"
	"payment-mail-reconciler-go/internal/mailbox"
	"payment-mail-reconciler-go/internal/matcher"
	"payment-mail-reconciler-go/internal/metrics"
	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/parser"
	"payment-mail-reconciler-go/internal/service/ledger"
	"payment-mail-reconciler-go/internal/service/notice"
)

// ErrScanInProgress is returned when another run holds the scan lock.
var ErrScanInProgress = errors.New("scan already in progress")

// Parser extracts a payment from one email.
type Parser interface {
	Parse(from string, raw []byte, receivedAt time.Time) parser.Result
}

// Matcher attributes a batch of payments to tenants.
type Matcher interface {
	Match(ctx context.Context, payments []*parser.ParsedPayment) ([]matcher.Match, error)
}

// Ledger records a payment with its ledger entry.
type Ledger interface {
	RecordPayment(ctx context.Context, in ledger.PaymentInput) (*ledger.Recorded, error)
}

// Resolver clears notices for paid periods.
type Resolver interface {
	ResolveIfPaid(ctx context.Context, tenantID uint, period model.Period) (*notice.Resolution, error)
}

// PaymentFinder looks up payments by their dedup key.
type PaymentFinder interface {
	FindPaymentByExternalID(ctx context.Context, method model.PaymentMethod, externalID string) (*model.Payment, error)
}

// Outcome is what happened to one fetched email.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeUnmatched     Outcome = "unmatched"
	OutcomeNotRecognized Outcome = "not_recognized"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeFailed        Outcome = "failed"
)

// Item is the per-email record of a run.
type Item struct {
	AccountID   string              `json:"accountId"`
	MessageID   string              `json:"messageId"`
	From        string              `json:"from"`
	Subject     string              `json:"subject"`
	Outcome     Outcome             `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	Method      model.PaymentMethod `json:"method,omitempty"`
	ExternalID  string              `json:"externalId,omitempty"`
	TenantID    *uint               `json:"tenantId,omitempty"`
	PaymentID   *uint               `json:"paymentId,omitempty"`
	MatchSource matcher.Source      `json:"matchSource,omitempty"`
	Score       float64             `json:"score,omitempty"`
	MarkedRead  bool                `json:"markedRead"`
}

// UnmatchedPayment is a parsed payment left for manual review.
type UnmatchedPayment struct {
	AccountID  string              `json:"accountId"`
	MessageID  string              `json:"messageId"`
	Method     model.PaymentMethod `json:"method"`
	ExternalID string              `json:"externalId"`
	PayerName  string              `json:"payerName"`
	Amount     decimal.Decimal     `json:"amount"`
	Date       time.Time           `json:"date"`
	Note       string              `json:"note,omitempty"`
	BestScore  float64             `json:"bestScore"`
	Reason     string              `json:"reason"`
}

// AccountFailure is a mailbox account that contributed nothing.
type AccountFailure struct {
	AccountID string `json:"accountId"`
	Error     string `json:"error"`
}

// PeriodResolution is the resolver outcome for one affected period.
type PeriodResolution struct {
	TenantID  uint         `json:"tenantId"`
	Period    model.Period `json:"period"`
	Resolved  int          `json:"resolved"`
	NoticeIDs []uint       `json:"noticeIds"`
}

// ScanResult summarizes one run. Counts are always filled in, even when
// individual emails were skipped.
type ScanResult struct {
	RunID             string             `json:"runId"`
	EmailsScanned     int                `json:"emailsScanned"`
	PaymentsParsed    int                `json:"paymentsParsed"`
	Created           int                `json:"created"`
	Duplicates        int                `json:"duplicates"`
	Unmatched         int                `json:"unmatched"`
	Skipped           int                `json:"skipped"`
	Failed            int                `json:"failed"`
	Items             []Item             `json:"items"`
	UnmatchedPayments []UnmatchedPayment `json:"unmatchedPayments"`
	AccountFailures   []AccountFailure   `json:"accountFailures"`
	Resolutions       []PeriodResolution `json:"resolutions"`
}

// Options configures a Service.
type Options struct {
	// MarkRead flags created and duplicate emails seen after commit.
	MarkRead bool
	LockKey  string
	LockTTL  time.Duration
}

// Service runs scans.
type Service struct {
	mailbox  Mailbox
	parser   Parser
	matcher  Matcher
	ledger   Ledger
	payments PaymentFinder
	resolver Resolver
	locker   lock.Locker
	metrics  *metrics.Metrics
	opts     Options
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Mailbox  Mailbox
	Parser   Parser
	Matcher  Matcher
	Ledger   Ledger
	Payments PaymentFinder
	Resolver Resolver
	Locker   lock.Locker
	Metrics  *metrics.Metrics
}

// NewService creates a reconciliation service. A nil Locker disables the
// run lock.
func NewService(d Deps, opts Options) *Service {
	if opts.LockKey == "" {
		opts.LockKey = "payment-reconciler:scan"
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Service{
		mailbox:  d.Mailbox,
		parser:   d.Parser,
		matcher:  d.Matcher,
		ledger:   d.Ledger,
		payments: d.Payments,
		resolver: d.Resolver,
		locker:   d.Locker,
		metrics:  d.Metrics,
		opts:     opts,
	}
}

type candidate struct {
	email   *mailbox.FetchedEmail
	payment *parser.ParsedPayment
	item    int
}

type periodKey struct {
	tenantID uint
	period   model.Period
}

// ScanAndCreatePayments fetches unread notifications and records every
// matched, not yet recorded payment. Running it twice against an unchanged
// mailbox creates nothing the second time. Only mailbox listing errors and
// storage failures abort the run; per-email problems are reported in Items.
func (s *Service) ScanAndCreatePayments(ctx context.Context) (*ScanResult, error) {
	started := time.Now()
	if s.locker != nil {
		lk, err := s.locker.Obtain(ctx, s.opts.LockKey, s.opts.LockTTL)
		if errors.Is(err, lock.ErrNotObtained) {
			s.metrics.ScanFinished("skipped", started)
			return nil, ErrScanInProgress
		}
		if err != nil {
			s.metrics.ScanFinished("failed", started)
			return nil, err
		}
		defer func() {
			if err := lk.Release(context.Background()); err != nil {
				logrus.Warnf("Failed to release scan lock: %v", err)
			}
		}()
	}

	res := &ScanResult{RunID: uuid.NewString()}
	log := logrus.WithField("run_id", res.RunID)
	log.Info("Starting payment scan")

	err := s.run(ctx, log, res)
	s.metrics.ObserveCounts(res.EmailsScanned, res.Created, res.Duplicates, res.Unmatched)
	if err != nil {
		s.metrics.ScanFinished("failed", started)
		log.Errorf("Payment scan failed: %v", err)
		return res, err
	}
	s.metrics.ScanFinished("ok", started)
	log.WithFields(logrus.Fields{
		"emails_scanned":  res.EmailsScanned,
		"payments_parsed": res.PaymentsParsed,
		"created":         res.Created,
		"duplicates":      res.Duplicates,
		"unmatched":       res.Unmatched,
		"skipped":         res.Skipped,
		"duration":        time.Since(started).String(),
	}).Info("Payment scan finished")
	return res, nil
}

func (s *Service) run(ctx context.Context, log *logrus.Entry, res *ScanResult) error {
	fetched, err := s.mailbox.FetchUnread(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch unread emails: %w", err)
	}
	for _, f := range fetched.Failures {
		res.AccountFailures = append(res.AccountFailures, AccountFailure{AccountID: f.AccountID, Error: f.Err.Error()})
		s.metrics.AccountFailed(f.AccountID)
	}

	res.EmailsScanned = len(fetched.Emails)
	if res.EmailsScanned == 0 {
		return nil
	}

	var candidates []candidate
	for i := range fetched.Emails {
		email := &fetched.Emails[i]
		item := Item{AccountID: email.AccountID, MessageID: email.MessageID, From: email.From, Subject: email.Subject}

		pr := s.safeParse(email)
		s.metrics.ObserveParse(string(pr.Outcome))
		switch pr.Outcome {
		case parser.OutcomeParsed:
			res.PaymentsParsed++
			item.Method = pr.Payment.Method
			item.ExternalID = pr.Payment.ExternalID
			candidates = append(candidates, candidate{email: email, payment: pr.Payment, item: len(res.Items)})
		case parser.OutcomeMalformed:
			item.Outcome, item.Reason = OutcomeMalformed, pr.Reason
			res.Skipped++
			log.WithFields(logrus.Fields{"account": email.AccountID, "message_id": email.MessageID}).
				Warnf("Skipping malformed payment email: %s", pr.Reason)
		default:
			item.Outcome, item.Reason = OutcomeNotRecognized, pr.Reason
			res.Skipped++
			log.WithFields(logrus.Fields{"account": email.AccountID, "message_id": email.MessageID}).
				Debugf("Email not recognized: %s", pr.Reason)
		}
		res.Items = append(res.Items, item)
	}
	if len(candidates) == 0 {
		return nil
	}

	payments := make([]*parser.ParsedPayment, len(candidates))
	for i, c := range candidates {
		payments[i] = c.payment
	}
	matches, err := s.matcher.Match(ctx, payments)
	if err != nil {
		return fmt.Errorf("failed to match payments: %w", err)
	}

	seen := &readBatch{}
	defer s.flushRead(ctx, log, res, seen)

	affected := make(map[periodKey]bool)
	var order []periodKey
	for i, c := range candidates {
		item := &res.Items[c.item]
		m := matches[i]
		item.MatchSource, item.Score, item.TenantID = m.Source, m.Score, m.TenantID
		elog := log.WithFields(logrus.Fields{
			"account":     c.email.AccountID,
			"message_id":  c.email.MessageID,
			"external_id": c.payment.ExternalID,
			"method":      c.payment.Method,
		})

		existing, err := s.payments.FindPaymentByExternalID(ctx, c.payment.Method, c.payment.ExternalID)
		switch {
		case err == nil:
			item.Outcome, item.Reason = OutcomeDuplicate, fmt.Sprintf("already recorded as payment %d", existing.ID)
			item.PaymentID = &existing.ID
			res.Duplicates++
			s.markRead(seen, c.email, c.item)
			continue
		case !errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("failed to check for duplicate payment: %w", err)
		}

		if !m.Matched() {
			item.Outcome, item.Reason = OutcomeUnmatched, m.Reason
			res.Unmatched++
			res.UnmatchedPayments = append(res.UnmatchedPayments, UnmatchedPayment{
				AccountID:  c.email.AccountID,
				MessageID:  c.email.MessageID,
				Method:     c.payment.Method,
				ExternalID: c.payment.ExternalID,
				PayerName:  c.payment.PayerName,
				Amount:     c.payment.Amount,
				Date:       c.payment.Timestamp,
				Note:       c.payment.Note,
				BestScore:  m.Score,
				Reason:     m.Reason,
			})
			elog.Infof("Payment from %q left unmatched: %s", c.payment.PayerName, m.Reason)
			continue
		}
		s.metrics.ObserveMatch(string(m.Source))

		rec, err := s.ledger.RecordPayment(ctx, ledger.PaymentInput{
			TenantID:   *m.TenantID,
			Amount:     c.payment.Amount,
			Method:     c.payment.Method,
			Date:       c.payment.Timestamp,
			Note:       c.payment.Note,
			ExternalID: c.payment.ExternalID,
			Status:     model.PaymentPending,
			Source:     model.SourceEmailImport,
			PayerName:  c.payment.PayerName,
			AccountID:  c.email.AccountID,
			MessageID:  c.email.MessageID,
			RunID:      res.RunID,
		})
		switch {
		case err == nil:
		case ledger.IsDuplicate(err):
			item.Outcome, item.Reason = OutcomeDuplicate, "recorded concurrently"
			res.Duplicates++
			s.markRead(seen, c.email, c.item)
			continue
		case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidAmount):
			item.Outcome, item.Reason = OutcomeFailed, err.Error()
			res.Failed++
			elog.Warnf("Payment not recorded: %v", err)
			continue
		default:
			return fmt.Errorf("failed to record payment %s: %w", c.payment.ExternalID, err)
		}

		item.Outcome = OutcomeCreated
		item.PaymentID = &rec.Payment.ID
		res.Created++
		elog.WithField("tenant_id", rec.Payment.TenantID).Infof("Recorded payment %d", rec.Payment.ID)
		s.markRead(seen, c.email, c.item)

		key := periodKey{tenantID: rec.Payment.TenantID, period: rec.Entry.Period}
		if !affected[key] {
			affected[key] = true
			order = append(order, key)
		}
	}

	s.resolve(ctx, log, res, order)
	return nil
}

// safeParse turns a parser panic into a malformed result for that email.
func (s *Service) safeParse(email *mailbox.FetchedEmail) (res parser.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = parser.Result{Outcome: parser.OutcomeMalformed, Reason: fmt.Sprintf("parser panic: %v", r)}
		}
	}()
	return s.parser.Parse(email.From, email.Raw, email.ReceivedAt)
}

// readBatch groups the items to flag seen by account, in first-seen order.
type readBatch struct {
	accounts  []string
	byAccount map[string][]int
}

func (b *readBatch) add(accountID string, item int) {
	if b.byAccount == nil {
		b.byAccount = make(map[string][]int)
	}
	if _, ok := b.byAccount[accountID]; !ok {
		b.accounts = append(b.accounts, accountID)
	}
	b.byAccount[accountID] = append(b.byAccount[accountID], item)
}

// markRead queues an email whose payment is committed. Nothing is flagged
// until flushRead.
func (s *Service) markRead(b *readBatch, email *mailbox.FetchedEmail, item int) {
	if !s.opts.MarkRead {
		return
	}
	b.add(email.AccountID, item)
}

// flushRead flags queued emails seen with one mailbox call per account. A
// failure leaves that account's emails unread for the next run.
func (s *Service) flushRead(ctx context.Context, log *logrus.Entry, res *ScanResult, b *readBatch) {
	for _, acct := range b.accounts {
		items := b.byAccount[acct]
		ids := make([]string, len(items))
		for i, idx := range items {
			ids[i] = res.Items[idx].MessageID
		}
		if err := s.mailbox.MarkRead(ctx, acct, ids...); err != nil {
			log.WithField("account", acct).Warnf("Failed to mark %d email(s) read: %v", len(ids), err)
			continue
		}
		for _, idx := range items {
			res.Items[idx].MarkedRead = true
		}
	}
}

func (s *Service) resolve(ctx context.Context, log *logrus.Entry, res *ScanResult, keys []periodKey) {
	if s.resolver == nil {
		return
	}
	for _, k := range keys {
		r, err := s.resolver.ResolveIfPaid(ctx, k.tenantID, k.period)
		if err != nil {
			log.WithFields(logrus.Fields{"tenant_id": k.tenantID, "period": k.period}).
				Errorf("Failed to resolve notices: %v", err)
			continue
		}
		res.Resolutions = append(res.Resolutions, PeriodResolution{
			TenantID:  k.tenantID,
			Period:    k.period,
			Resolved:  r.Resolved,
			NoticeIDs: r.NoticeIDs,
		})
	}
}
