// Package migrations embeds the ledger schema for every supported database type.
package migrations

import (
	"embed"
	"fmt"
)

//go:embed sqlite/*.sql postgres/*.sql mysql/*.sql
var FS embed.FS

// Table tracks the applied ledger schema versions.
const Table = "provision_schema_migrations"

// Path returns the migration directory for dbType.
func Path(dbType string) (string, error) {
	switch dbType {
	case "sqlite", "postgres", "mysql":
		return dbType, nil
	default:
		return "", fmt.Errorf("no ledger migrations for database type: %s", dbType)
	}
}
