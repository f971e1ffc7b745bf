// Package memory is an in-process Store for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"payment-mail-reconciler-go/internal/model"
	"payment-mail-reconciler-go/internal/repository"
)

// Store keeps every table in maps guarded by one mutex. Tenant
// transactions are serialized per tenant and buffer their writes until fn
// returns nil.
type Store struct {
	mu sync.RWMutex

	nextID   uint
	tenants  map[uint]*model.Tenant
	leases   []model.Lease
	aliases  []model.PayerAlias
	payments []model.Payment
	entries  []model.LedgerEntry
	notices  map[uint]*model.Notice
	audit    []model.AuditEvent

	tenantLocks sync.Map

	// FailWrites, when set, is returned by every write.
	FailWrites error
	now        func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		tenants: make(map[uint]*model.Tenant),
		notices: make(map[uint]*model.Notice),
		now:     time.Now,
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

// AddTenant inserts a tenant and returns its copy with the assigned id.
func (s *Store) AddTenant(name string) model.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &model.Tenant{ID: s.id(), Name: name, Status: model.TenantActive, CreatedAt: s.now()}
	s.tenants[t.ID] = t
	return *t
}

// AddLease inserts a lease.
func (s *Store) AddLease(l model.Lease) model.Lease {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	if l.Status == "" {
		l.Status = model.LeaseActive
	}
	s.leases = append(s.leases, l)
	return l
}

// AddNotice inserts a notice, keeping a non-zero CreatedAt.
func (s *Store) AddNotice(n model.Notice) model.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	n.UpdatedAt = n.CreatedAt
	s.notices[n.ID] = &n
	return n
}

// Notice returns a copy of a notice.
func (s *Store) Notice(id uint) (model.Notice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notices[id]
	if !ok {
		return model.Notice{}, false
	}
	return *n, true
}

// Payments returns all committed payments.
func (s *Store) Payments() []model.Payment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Payment(nil), s.payments...)
}

func (s *Store) InTenantTx(ctx context.Context, tenantID uint, fn func(tx repository.Tx) error) error {
	s.mu.RLock()
	_, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tenant %d: %w", tenantID, model.ErrNotFound)
	}

	l, _ := s.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	tx := &memTx{store: s, tenantID: tenantID}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range tx.payments {
		if s.paymentExistsLocked(p.Method, p.ExternalID) {
			return model.ErrDuplicatePayment
		}
	}
	s.payments = append(s.payments, tx.payments...)
	s.entries = append(s.entries, tx.entries...)
	s.audit = append(s.audit, tx.audit...)
	return nil
}

func (s *Store) paymentExistsLocked(method model.PaymentMethod, externalID *string) bool {
	if externalID == nil {
		return false
	}
	for _, p := range s.payments {
		if p.Method == method && p.ExternalID != nil && *p.ExternalID == *externalID {
			return true
		}
	}
	return false
}

type memTx struct {
	store    *Store
	tenantID uint
	payments []model.Payment
	entries  []model.LedgerEntry
	audit    []model.AuditEvent
}

func (t *memTx) LastEntry(context.Context) (*model.LedgerEntry, error) {
	if n := len(t.entries); n > 0 {
		e := t.entries[n-1]
		return &e, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for i := len(t.store.entries) - 1; i >= 0; i-- {
		if t.store.entries[i].TenantID == t.tenantID {
			e := t.store.entries[i]
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *model.Payment) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.FailWrites != nil {
		return t.store.FailWrites
	}
	if t.store.paymentExistsLocked(p.Method, p.ExternalID) {
		return model.ErrDuplicatePayment
	}
	for _, q := range t.payments {
		if q.Method == p.Method && q.ExternalID != nil && p.ExternalID != nil && *q.ExternalID == *p.ExternalID {
			return model.ErrDuplicatePayment
		}
	}
	p.ID = t.store.id()
	p.CreatedAt = t.store.now()
	p.UpdatedAt = p.CreatedAt
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) CreateEntry(_ context.Context, e *model.LedgerEntry) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.FailWrites != nil {
		return t.store.FailWrites
	}
	e.ID = t.store.id()
	e.CreatedAt = t.store.now()
	t.entries = append(t.entries, *e)
	return nil
}

func (t *memTx) RecordAudit(_ context.Context, ev *model.AuditEvent) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ev.ID = t.store.id()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = t.store.now()
	}
	t.audit = append(t.audit, *ev)
	return nil
}

func (s *Store) GetTenant(_ context.Context, id uint) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %d: %w", id, model.ErrNotFound)
	}
	out := *t
	for _, l := range s.leases {
		if l.TenantID == id {
			out.Leases = append(out.Leases, l)
		}
	}
	return &out, nil
}

func (s *Store) FindPaymentByExternalID(_ context.Context, method model.PaymentMethod, externalID string) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.Method == method && p.ExternalID != nil && *p.ExternalID == externalID {
			out := p
			return &out, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", model.ErrNotFound)
}

func (s *Store) ListEntries(_ context.Context, tenantID uint) ([]model.LedgerEntry, error) {
	return s.filterEntries(func(e model.LedgerEntry) bool { return e.TenantID == tenantID }), nil
}

func (s *Store) ListEntriesForPeriod(_ context.Context, tenantID uint, period model.Period) ([]model.LedgerEntry, error) {
	return s.filterEntries(func(e model.LedgerEntry) bool {
		return e.TenantID == tenantID && e.Period == period
	}), nil
}

func (s *Store) filterEntries(keep func(model.LedgerEntry) bool) []model.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LedgerEntry
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) ListNotices(_ context.Context, f repository.NoticeFilter) ([]model.Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Notice
	for _, n := range s.notices {
		if f.TenantID != 0 && n.TenantID != f.TenantID {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, n.Type) {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, n.Status) {
			continue
		}
		if !f.CreatedFrom.IsZero() && n.CreatedAt.Before(f.CreatedFrom) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !n.CreatedAt.Before(f.CreatedBefore) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AcknowledgeNotice(_ context.Context, id uint, from []model.NoticeStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return false, s.FailWrites
	}
	n, ok := s.notices[id]
	if !ok || !containsStatus(from, n.Status) {
		return false, nil
	}
	n.Status = model.NoticeAcknowledged
	n.AcknowledgedAt = &at
	n.UpdatedAt = at
	return true, nil
}

func (s *Store) ListActiveLeases(_ context.Context, at time.Time) ([]model.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Lease
	for _, l := range s.leases {
		t, ok := s.tenants[l.TenantID]
		if !ok || !l.ActiveAt(at) {
			continue
		}
		tenant := *t
		l.Tenant = &tenant
		out = append(out, l)
	}
	return out, nil
}

func (s *Store) ListPayerAliases(context.Context) ([]model.PayerAlias, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PayerAlias(nil), s.aliases...), nil
}

func (s *Store) ListPayerHistory(context.Context) ([]model.PayerHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[model.PayerHistory]bool)
	var out []model.PayerHistory
	for _, p := range s.payments {
		if p.Source != model.SourceEmailImport || p.PayerName == "" {
			continue
		}
		h := model.PayerHistory{Method: p.Method, PayerName: p.PayerName, TenantID: p.TenantID}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *Store) CreatePayerAlias(_ context.Context, a *model.PayerAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	for _, existing := range s.aliases {
		if existing.Method == a.Method && existing.PayerName == a.PayerName {
			return model.ErrDuplicateAlias
		}
	}
	a.ID = s.id()
	a.CreatedAt = s.now()
	s.aliases = append(s.aliases, *a)
	return nil
}

func (s *Store) RecordAudit(_ context.Context, ev *model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	ev.ID = s.id()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	s.audit = append(s.audit, *ev)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, f repository.AuditFilter) ([]model.AuditEvent, int64, error) {
	f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []model.AuditEvent
	for i := len(s.audit) - 1; i >= 0; i-- {
		ev := s.audit[i]
		if f.TenantID != nil && (ev.TenantID == nil || *ev.TenantID != *f.TenantID) {
			continue
		}
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		matched = append(matched, ev)
	}
	total := int64(len(matched))
	start := (f.Page - 1) * f.Limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func containsType(list []model.NoticeType, v model.NoticeType) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsStatus(list []model.NoticeStatus, v model.NoticeStatus) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
