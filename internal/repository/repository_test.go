package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicate(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, IsDuplicate(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}))
	assert.False(t, IsDuplicate(errors.New("connection refused")))
	assert.False(t, IsDuplicate(nil))
}

func TestAuditFilterNormalize(t *testing.T) {
	tests := []struct {
		in   AuditFilter
		page int
		lim  int
	}{
		{AuditFilter{}, 1, 50},
		{AuditFilter{Page: 3, Limit: 20}, 3, 20},
		{AuditFilter{Page: -1, Limit: 500}, 1, 50},
	}
	for _, tt := range tests {
		f := tt.in
		f.Normalize()
		assert.Equal(t, tt.page, f.Page)
		assert.Equal(t, tt.lim, f.Limit)
	}
}
