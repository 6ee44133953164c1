package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"
	gormadapter "github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm"
	model "github.com/tigerroll/provisioner/pkg/provision/core/domain/model"
	repository "github.com/tigerroll/provisioner/pkg/provision/core/domain/repository"
	reposql "github.com/tigerroll/provisioner/pkg/provision/infrastructure/repository/sql"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

type staticResolver struct {
	conn database.DBConnection
}

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newMockRepository(t *testing.T) (*reposql.SQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:         gormadapter.NewGormLogger("SILENT"),
		TranslateError: true,
	})
	require.NoError(t, err)

	conn, err := gormadapter.NewGormDBAdapter(gdb, dbconfig.DatabaseConfig{Type: "postgres"}, "ledger")
	require.NoError(t, err)
	return reposql.NewSQLRepository(staticResolver{conn: conn}, "ledger"), mock
}

func TestIncrementOutcome_SingleAtomicUpdate(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "provision_batch_operations" SET "last_updated"=\$1,"processed_items"=processed_items \+ \$2,"successful_items"=successful_items \+ \$3 WHERE id = \$4`).
		WithArgs(sqlmock.AnyArg(), 1, 1, "b1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.IncrementOutcome(context.Background(), "b1", model.ItemStatusSuccess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementOutcome_SkippedLeavesProcessed(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "provision_batch_operations" SET "last_updated"=\$1,"skipped_items"=skipped_items \+ \$2 WHERE id = \$3`).
		WithArgs(sqlmock.AnyArg(), 1, "b1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.IncrementOutcome(context.Background(), "b1", model.ItemStatusSkipped)
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMappingCreate_UniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "provision_external_mappings"`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	m := model.NewExternalMapping(model.ProviderIdentity, "acct-1", "ext-1", nil, time.Now())
	_, err := repo.Mappings().Create(context.Background(), m)
	assert.ErrorIs(t, err, repository.ErrMappingConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMappingCreate_DriverErrorIsRetryableDatabaseError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "provision_external_mappings"`).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	m := model.NewExternalMapping(model.ProviderIdentity, "acct-1", "ext-1", nil, time.Now())
	_, err := repo.Mappings().Create(context.Background(), m)
	require.Error(t, err)
	assert.False(t, errors.Is(err, repository.ErrMappingConflict))

	be, ok := exception.AsBatchError(err)
	require.True(t, ok)
	assert.Equal(t, exception.KindDatabase, be.Kind)
	assert.True(t, be.IsRetryable())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBatchByID_NotFound(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT \* FROM "provision_batch_operations" WHERE id = \$1`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindBatchByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrBatchNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
