package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"payment-mail-reconciler-go/internal/model"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return New(db), mock
}

func TestInTenantTxLocksTenantRow(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `tenants` WHERE id = \\?.* FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("SELECT \\* FROM `ledger_entries` WHERE tenant_id = \\? ORDER BY id DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "balance"}).AddRow(41, 7, "250.00"))
	mock.ExpectCommit()

	var last *model.LedgerEntry
	err := repo.InTenantTx(context.Background(), 7, func(tx Tx) error {
		var err error
		last, err = tx.LastEntry(context.Background())
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, uint(41), last.ID)
	assert.True(t, decimal.RequireFromString("250").Equal(last.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTenantTxUnknownTenantRollsBack(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM `tenants` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.InTenantTx(context.Background(), 99, func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentDuplicateKey(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM `tenants` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO `payments`").
		WillReturnError(&mysqlerr.MySQLError{Number: 1062, Message: "Duplicate entry 'zelle-ABC123' for key 'idx_payment_external'"})
	mock.ExpectRollback()

	ref := "ABC123"
	err := repo.InTenantTx(context.Background(), 7, func(tx Tx) error {
		return tx.CreatePayment(context.Background(), &model.Payment{
			TenantID:   7,
			Amount:     decimal.RequireFromString("1200.00"),
			Method:     model.MethodZelle,
			Date:       time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			ExternalID: &ref,
			Source:     model.SourceEmailImport,
		})
	})
	assert.ErrorIs(t, err, model.ErrDuplicatePayment)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePaymentOtherErrorIsWrapped(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM `tenants` .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec("INSERT INTO `payments`").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.InTenantTx(context.Background(), 7, func(tx Tx) error {
		return tx.CreatePayment(context.Background(), &model.Payment{TenantID: 7, Method: model.MethodVenmo})
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrDuplicatePayment)
	assert.ErrorContains(t, err, "failed to create payment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNoticesBounds(t *testing.T) {
	repo, mock := newMockRepository(t)
	from := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	before := time.Date(2024, 4, 1, 4, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT \\* FROM `notices` WHERE tenant_id = \\? AND type IN \\(\\?,\\?\\) AND status IN \\(\\?\\) AND created_at >= \\? AND created_at < \\? ORDER BY id ASC").
		WithArgs(uint(3), model.NoticeLateRent, model.NoticeEvictionWarning, model.NoticeSent, from, before).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "type", "status"}).
			AddRow(5, 3, "late_rent", "sent"))

	notices, err := repo.ListNotices(context.Background(), NoticeFilter{
		TenantID:      3,
		Types:         []model.NoticeType{model.NoticeLateRent, model.NoticeEvictionWarning},
		Statuses:      []model.NoticeStatus{model.NoticeSent},
		CreatedFrom:   from,
		CreatedBefore: before,
	})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, uint(5), notices[0].ID)
	assert.Equal(t, model.NoticeLateRent, notices[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeNoticeIsConditional(t *testing.T) {
	repo, mock := newMockRepository(t)
	at := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
	from := []model.NoticeStatus{model.NoticeSent, model.NoticeServed}
	update := "UPDATE `notices` SET `acknowledged_at`=\\?,`status`=\\?,`updated_at`=\\? WHERE id = \\? AND status IN \\(\\?,\\?\\)"

	mock.ExpectBegin()
	mock.ExpectExec(update).
		WithArgs(at, model.NoticeAcknowledged, at, uint(9), model.NoticeSent, model.NoticeServed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.AcknowledgeNotice(context.Background(), 9, from, at)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already acknowledged by a concurrent resolver: no row changes.
	mock.ExpectBegin()
	mock.ExpectExec(update).
		WithArgs(at, model.NoticeAcknowledged, at, uint(9), model.NoticeSent, model.NoticeServed).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err = repo.AcknowledgeNotice(context.Background(), 9, from, at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListPayerHistoryIsDistinct(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("SELECT DISTINCT `method`,`payer_name`,`tenant_id` FROM `payments` WHERE source = \\? AND payer_name <> ''").
		WithArgs(model.SourceEmailImport).
		WillReturnRows(sqlmock.NewRows([]string{"method", "payer_name", "tenant_id"}).
			AddRow("zelle", "JANE DOE", 1).
			AddRow("venmo", "Jane Doe", 1))

	history, err := repo.ListPayerHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.MethodZelle, history[0].Method)
	assert.Equal(t, "JANE DOE", history[0].PayerName)
	assert.Equal(t, uint(1), history[1].TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
