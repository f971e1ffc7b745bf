// Package matcher attributes parsed payments to tenants.
package matcher

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/parser"
)

// Source names the signal that produced a match.
type Source string

const (
	SourceAlias   Source = "alias"
	SourceHistory Source = "history"
	SourceFuzzy   Source = "fuzzy"
	SourceNone    Source = "none"
)

const (
	DefaultThreshold = 0.92
	DefaultMargin    = 0.05
)

// Directory supplies the tenant data a batch is matched against.
type Directory interface {
	ListActiveLeases(ctx context.Context, at time.Time) ([]model.Lease, error)
	ListPayerAliases(ctx context.Context) ([]model.PayerAlias, error)
	ListPayerHistory(ctx context.Context) ([]model.PayerHistory, error)
}

// Options tunes fuzzy acceptance.
type Options struct {
	Threshold float64
	Margin    float64
	Now       func() time.Time
}

// Match is one payment annotated with its tenant, if any.
type Match struct {
	Payment  *parser.ParsedPayment
	TenantID *uint
	Source   Source
	Score    float64
	Reason   string
}

// Matched reports whether a tenant was attributed.
func (m Match) Matched() bool {
	return m.TenantID != nil
}

// Matcher resolves payer names to tenants conservatively: a wrong
// attribution is worse than none.
type Matcher struct {
	dir       Directory
	threshold float64
	margin    float64
	now       func() time.Time
	jw        *metrics.JaroWinkler
	jaro      *metrics.Jaro
}

// New creates a matcher. Zero options fall back to the defaults.
func New(dir Directory, opts Options) *Matcher {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Margin <= 0 {
		opts.Margin = DefaultMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	jw := metrics.NewJaroWinkler()
	jw.CaseSensitive = false
	jaro := metrics.NewJaro()
	jaro.CaseSensitive = false
	return &Matcher{dir: dir, threshold: opts.Threshold, margin: opts.Margin, now: opts.Now, jw: jw, jaro: jaro}
}

type aliasKey struct {
	method model.PaymentMethod
	name   string
}

type candidate struct {
	tenantID uint
	name     string
	rents    []decimal.Decimal
}

// snapshot is the directory state loaded once per batch.
type snapshot struct {
	aliases    map[aliasKey]uint
	history    map[string]map[uint]struct{}
	candidates []*candidate
}

// Match annotates payments in order. The returned slice has the same length
// as payments.
func (m *Matcher) Match(ctx context.Context, payments []*parser.ParsedPayment) ([]Match, error) {
	if len(payments) == 0 {
		return nil, nil
	}
	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Match, len(payments))
	for i, p := range payments {
		out[i] = m.matchOne(snap, p)
		logrus.WithFields(logrus.Fields{
			"external_id": p.ExternalID,
			"method":      p.Method,
			"source":      out[i].Source,
			"score":       out[i].Score,
		}).Debug("Matched payment")
	}
	return out, nil
}

func (m *Matcher) load(ctx context.Context) (*snapshot, error) {
	leases, err := m.dir.ListActiveLeases(ctx, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active leases: %w", err)
	}
	aliases, err := m.dir.ListPayerAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payer aliases: %w", err)
	}
	history, err := m.dir.ListPayerHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payer history: %w", err)
	}

	snap := &snapshot{
		aliases: make(map[aliasKey]uint, len(aliases)),
		history: make(map[string]map[uint]struct{}),
	}
	for _, a := range aliases {
		snap.aliases[aliasKey{a.Method, NormalizeName(a.PayerName)}] = a.TenantID
	}
	for _, h := range history {
		name := NormalizeName(h.PayerName)
		if name == "" {
			continue
		}
		if snap.history[name] == nil {
			snap.history[name] = make(map[uint]struct{})
		}
		snap.history[name][h.TenantID] = struct{}{}
	}

	byTenant := make(map[uint]*candidate)
	for _, l := range leases {
		if l.Tenant == nil {
			continue
		}
		c, ok := byTenant[l.TenantID]
		if !ok {
			c = &candidate{tenantID: l.TenantID, name: NormalizeName(l.Tenant.Name)}
			byTenant[l.TenantID] = c
			snap.candidates = append(snap.candidates, c)
		}
		c.rents = append(c.rents, l.MonthlyRent)
	}
	sort.Slice(snap.candidates, func(i, j int) bool {
		return snap.candidates[i].tenantID < snap.candidates[j].tenantID
	})
	return snap, nil
}

func (m *Matcher) matchOne(snap *snapshot, p *parser.ParsedPayment) Match {
	name := NormalizeName(p.PayerName)
	if name == "" {
		return Match{Payment: p, Source: SourceNone, Reason: "payer name missing"}
	}

	if id, ok := snap.aliases[aliasKey{p.Method, name}]; ok {
		return matched(p, id, SourceAlias, 1, "payer alias")
	}

	if tenants := snap.history[name]; len(tenants) == 1 {
		for id := range tenants {
			return matched(p, id, SourceHistory, 1, "payer history")
		}
	} else if len(tenants) > 1 {
		return Match{Payment: p, Source: SourceNone, Reason: "payer history is ambiguous"}
	}

	type scored struct {
		c      *candidate
		score  float64
		agrees bool
	}
	var ranked []scored
	for _, c := range snap.candidates {
		ranked = append(ranked, scored{c, m.similarity(name, c.name), m.tokensAgree(name, c.name)})
	}
	if len(ranked) == 0 {
		return Match{Payment: p, Source: SourceNone, Reason: "no active leases"}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	best := ranked[0]
	if best.score < m.threshold {
		return Match{Payment: p, Source: SourceNone, Score: best.score,
			Reason: fmt.Sprintf("best similarity %.3f below threshold", best.score)}
	}
	if !best.agrees {
		return Match{Payment: p, Source: SourceNone, Score: best.score,
			Reason: "closest tenant name differs token by token"}
	}
	if len(ranked) == 1 || best.score-ranked[1].score >= m.margin {
		return matched(p, best.c.tenantID, SourceFuzzy, best.score, "name similarity")
	}

	// Close contenders: accept only when exactly one has rent equal to the amount.
	var byRent []scored
	for _, r := range ranked {
		if best.score-r.score >= m.margin || r.score < m.threshold {
			break
		}
		if r.agrees && r.c.paysRent(p.Amount) {
			byRent = append(byRent, r)
		}
	}
	if len(byRent) == 1 {
		return matched(p, byRent[0].c.tenantID, SourceFuzzy, byRent[0].score, "name similarity with rent amount")
	}
	return Match{Payment: p, Source: SourceNone, Score: best.score, Reason: "ambiguous between tenants"}
}

func (m *Matcher) similarity(a, b string) float64 {
	s := strutil.Similarity(a, b, m.jw)
	if r := strutil.Similarity(sortedTokens(a), sortedTokens(b), m.jw); r > s {
		s = r
	}
	return s
}

// tokensAgree requires both names to have the same number of tokens and
// every token to pair with one scoring at least the threshold, in order or
// alphabetically. Plain Jaro is used per token so a shared prefix earns no
// bonus: "smith" does not agree with "smithson", nor "dan" with "dana".
func (m *Matcher) tokensAgree(a, b string) bool {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) != len(tb) {
		return false
	}
	if m.pairsAgree(ta, tb) {
		return true
	}
	sort.Strings(ta)
	sort.Strings(tb)
	return m.pairsAgree(ta, tb)
}

func (m *Matcher) pairsAgree(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] && strutil.Similarity(a[i], b[i], m.jaro) < m.threshold {
			return false
		}
	}
	return true
}

func (c *candidate) paysRent(amount decimal.Decimal) bool {
	for _, r := range c.rents {
		if r.Equal(amount) {
			return true
		}
	}
	return false
}

func matched(p *parser.ParsedPayment, tenantID uint, src Source, score float64, reason string) Match {
	id := tenantID
	return Match{Payment: p, TenantID: &id, Source: src, Score: score, Reason: reason}
}
