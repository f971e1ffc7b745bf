package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"payment-mail-reconciler-go/internal/model"
)

const mysqlDuplicateEntry = 1062

// Repository is the MySQL-backed Store.
type Repository struct {
	db *gorm.DB
}

// New wraps an open gorm connection.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// IsDuplicate reports whether err is a unique key violation.
func IsDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func (r *Repository) InTenantTx(ctx context.Context, tenantID uint, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tenant model.Tenant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", tenantID).
			Take(&tenant).Error
		if err != nil {
			return notFound(err, fmt.Sprintf("tenant %d", tenantID))
		}
		return fn(&gormTx{db: tx, tenantID: tenantID})
	})
}

type gormTx struct {
	db       *gorm.DB
	tenantID uint
}

func (t *gormTx) LastEntry(ctx context.Context) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := t.db.WithContext(ctx).
		Where("tenant_id = ?", t.tenantID).
		Order("id DESC").
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last ledger entry: %w", err)
	}
	return &entry, nil
}

func (t *gormTx) CreatePayment(ctx context.Context, p *model.Payment) error {
	if err := t.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error; err != nil {
		if IsDuplicate(err) {
			return model.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (t *gormTx) CreateEntry(ctx context.Context, e *model.LedgerEntry) error {
	if err := t.db.WithContext(ctx).Create(e).Error; err != nil {
		if IsDuplicate(err) {
			return model.ErrDuplicatePayment
		}
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (t *gormTx) RecordAudit(ctx context.Context, ev *model.AuditEvent) error {
	return recordAudit(t.db.WithContext(ctx), ev)
}

func recordAudit(db *gorm.DB, ev *model.AuditEvent) error {
	if err := db.Create(ev).Error; err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (r *Repository) GetTenant(ctx context.Context, id uint) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := r.db.WithContext(ctx).Preload("Leases").First(&tenant, id).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("tenant %d", id))
	}
	return &tenant, nil
}

func (r *Repository) FindPaymentByExternalID(ctx context.Context, method model.PaymentMethod, externalID string) (*model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("method = ? AND external_id = ?", method, externalID).
		Take(&p).Error
	if err != nil {
		return nil, notFound(err, "payment")
	}
	return &p, nil
}

func (r *Repository) ListEntries(ctx context.Context, tenantID uint) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) ListEntriesForPeriod(ctx context.Context, tenantID uint, period model.Period) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period = ?", tenantID, period).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries for %s: %w", period, err)
	}
	return entries, nil
}

func (r *Repository) ListNotices(ctx context.Context, f NoticeFilter) ([]model.Notice, error) {
	q := r.db.WithContext(ctx).Model(&model.Notice{})
	if f.TenantID != 0 {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if len(f.Types) > 0 {
		q = q.Where("type IN ?", f.Types)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom)
	}
	if !f.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", f.CreatedBefore)
	}

	var notices []model.Notice
	if err := q.Order("id ASC").Find(&notices).Error; err != nil {
		return nil, fmt.Errorf("failed to list notices: %w", err)
	}
	return notices, nil
}

func (r *Repository) AcknowledgeNotice(ctx context.Context, id uint, from []model.NoticeStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Notice{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":          model.NoticeAcknowledged,
			"acknowledged_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acknowledge notice %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) ListActiveLeases(ctx context.Context, at time.Time) ([]model.Lease, error) {
	var leases []model.Lease
	err := r.db.WithContext(ctx).
		Preload("Tenant").
		Where("status = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)", model.LeaseActive, at, at).
		Find(&leases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active leases: %w", err)
	}
	return leases, nil
}

func (r *Repository) ListPayerAliases(ctx context.Context) ([]model.PayerAlias, error) {
	var aliases []model.PayerAlias
	if err := r.db.WithContext(ctx).Find(&aliases).Error; err != nil {
		return nil, fmt.Errorf("failed to list payer aliases: %w", err)
	}
	return aliases, nil
}

func (r *Repository) ListPayerHistory(ctx context.Context) ([]model.PayerHistory, error) {
	var history []model.PayerHistory
	err := r.db.WithContext(ctx).
		Model(&model.Payment{}).
		Distinct("method", "payer_name", "tenant_id").
		Where("source = ? AND payer_name <> ''", model.SourceEmailImport).
		Scan(&history).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payer history: %w", err)
	}
	return history, nil
}

func (r *Repository) CreatePayerAlias(ctx context.Context, a *model.PayerAlias) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		if IsDuplicate(err) {
			return model.ErrDuplicateAlias
		}
		return fmt.Errorf("failed to create payer alias: %w", err)
	}
	return nil
}

func (r *Repository) RecordAudit(ctx context.Context, ev *model.AuditEvent) error {
	return recordAudit(r.db.WithContext(ctx), ev)
}

func (r *Repository) ListAuditEvents(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int64, error) {
	f.Normalize()
	filter := func(db *gorm.DB) *gorm.DB {
		if f.TenantID != nil {
			db = db.Where("tenant_id = ?", *f.TenantID)
		}
		if f.Action != "" {
			db = db.Where("action = ?", f.Action)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.AuditEvent{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	var events []model.AuditEvent
	err := r.db.WithContext(ctx).Scopes(filter).
		Order("id DESC").
		Offset((f.Page - 1) * f.Limit).
		Limit(f.Limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	return events, total, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
