// Package sql implements the ledger, mapping and mailbox repositories on top of GORM.
// Every call resolves the named connection, so a dropped pool is reopened transparently.
package sql

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/tigerroll/provisioner/pkg/provision/adapter/database"
	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

const moduleName = "sql_repository"

// SQLRepository implements repository.BatchRepository. Mappings and Mailboxes expose the
// other two repositories over the same connection.
type SQLRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the database connection used by this repository (e.g., "ledger").
	dbName string
}

// NewSQLRepository creates a repository that stores everything in the dbName connection.
func NewSQLRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRepository {
	return &SQLRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

// getDB resolves the connection and returns a GORM session bound to ctx.
func (r *SQLRepository) getDB(ctx context.Context) (*gorm.DB, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, exception.KindDatabase, fmt.Sprintf("failed to resolve DB connection '%s'", r.dbName), err)
	}
	return conn.GormDB().WithContext(ctx), nil
}

// dbError wraps a driver error into a retryable DATABASE_ERROR.
func dbError(op, msg string, err error) error {
	return exception.NewBatchError(op, exception.KindDatabase, msg, err)
}

// isDuplicateKey reports whether err is a unique constraint violation on any supported dialect.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
