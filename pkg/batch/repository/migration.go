package repository

import (
	"database/sql"
	"embed"
	"strings"

	"github.com/tigerroll/autobatch/pkg/batch/database"
)

//go:embed migrations
var migrations embed.FS

// Migrate はジョブリポジトリのスキーマを作成または更新します。
func Migrate(db *sql.DB, dbType, migrationsTable string) error {
	dir := "migrations/common"
	if strings.EqualFold(dbType, "sqlserver") {
		dir = "migrations/sqlserver"
	}
	return database.RunMigrations(db, dbType, migrations, dir, migrationsTable)
}
