package grouping

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewManager(gormDB), mock
}

func TestCloseGroup_RollsBackOnStoreFailure(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "table_groups" WHERE "table_groups"."id" = \$1 .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "branch_id", "status", "staff_id"}).
			AddRow(7, 1, 1, "OPEN", 3))
	mock.ExpectExec(`UPDATE "table_groups" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT "table_id" FROM "group_memberships" WHERE group_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"table_id"}).AddRow(1).AddRow(2))
	mock.ExpectExec(`DELETE FROM "group_memberships" WHERE group_id = \$1`).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	err := m.CloseGroup(context.Background(), 7)
	require.Error(t, err)

	var te *utils.TransactionError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Retryable())
	assert.Equal(t, "close table group", te.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddTable_RollsBackWhenBackReferenceFails(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "table_groups"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "branch_id", "status", "staff_id"}).
			AddRow(7, 1, 1, "OPEN", 3))
	mock.ExpectQuery(`SELECT \* FROM "tables"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "branch_id", "tenant_id", "status", "accumulated_total"}).
			AddRow(5, 12, 1, 1, "free", "0"))
	mock.ExpectQuery(`SELECT group_memberships.group_id, group_memberships.table_id FROM "group_memberships" JOIN table_groups`).
		WillReturnRows(sqlmock.NewRows([]string{"group_id", "table_id"}))
	mock.ExpectExec(`INSERT INTO "group_memberships"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "tables" SET "group_id"=\$1`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	err := m.AddTable(context.Background(), 7, 5)
	require.Error(t, err)
	assert.True(t, utils.IsTransaction(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
