package gorm_test

import (
	"testing"

	dbconfig "github.com/tigerroll/provisioner/pkg/provision/adapter/database/config"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/mysql"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/postgres"
	"github.com/tigerroll/provisioner/pkg/provision/adapter/database/gorm/sqlite"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStrings(t *testing.T) {
	c := dbconfig.DatabaseConfig{Host: "db", Port: 5432, User: "prov", Password: "pw", Database: "ledger"}

	assert.Equal(t, "host=db port=5432 user=prov password=pw dbname=ledger sslmode=disable", postgres.ConnectionString(c))

	c.Port = 3306
	assert.Equal(t, "prov:pw@tcp(db:3306)/ledger?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true", mysql.ConnectionString(c))

	assert.Equal(t, "/tmp/l.db?_busy_timeout=5000&_foreign_keys=on", sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "/tmp/l.db"}))
	assert.Equal(t, "file::memory:?cache=shared", sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "file::memory:?cache=shared"}))
}
