//go:build unit

package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reelpostly/repostly/internal/service"
)

// The decrement must be a single guarded UPDATE ... RETURNING, never a read
// followed by a write. This pins the statement shape against the postgres
// dialect.
func TestDecrementAccountBalance_SingleGuardedStatement(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	repo := NewCreditRepository(db)

	mock.ExpectQuery(`(?s)UPDATE api_key_accounts\s+SET balance = balance - .+WHERE id = .+ AND status = .+ AND balance >= .+RETURNING balance`).
		WithArgs(int64(6), "rk_a", service.AccountStatusActive, int64(6)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(4)))

	remaining, ok, err := repo.DecrementAccountBalance(context.Background(), "rk_a", 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 4, remaining)
	require.NoError(t, mock.ExpectationsWereMet())
}
