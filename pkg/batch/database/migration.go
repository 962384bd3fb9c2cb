package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlserver"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// DefaultMigrationsTable はバッチフレームワークのマイグレーション履歴テーブル名です。
const DefaultMigrationsTable = "batch_schema_migrations"

// RunMigrations は埋め込まれたマイグレーションを既存の接続に適用します。
//
// dbType: データベースの種類 (例: "postgres", "mysql", "sqlite", "sqlserver")
// source, dir: マイグレーションファイルを含むファイルシステムとディレクトリ
// migrationsTable: 履歴テーブル名。空の場合は DefaultMigrationsTable を使用します。
//
// migrate.Close はドライバ経由で db を閉じるため呼び出しません。
func RunMigrations(db *sql.DB, dbType string, source fs.FS, dir, migrationsTable string) error {
	if migrationsTable == "" {
		migrationsTable = DefaultMigrationsTable
	}
	logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", dbType, dir)

	var (
		driver migratedb.Driver
		err    error
	)
	switch strings.ToLower(dbType) {
	case "postgres", "redshift", "pgx":
		driver, err = postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	case "mysql":
		driver, err = mysql.WithInstance(db, &mysql.Config{MigrationsTable: migrationsTable})
	case "sqlite":
		driver, err = sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: migrationsTable})
	case "sqlserver":
		driver, err = sqlserver.WithInstance(db, &sqlserver.Config{MigrationsTable: migrationsTable})
	default:
		return exception.NewConfigurationError("migration", fmt.Sprintf("マイグレーションがサポートされていないデータベースタイプ: %s", dbType), nil)
	}
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションドライバの作成に失敗しました", err)
	}

	src, err := iofs.New(source, dir)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションソースの読み込みに失敗しました", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbType, driver)
	if err != nil {
		return exception.NewBatchError("migration", "マイグレーションインスタンスの作成に失敗しました", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil
		}
		return exception.NewBatchError("migration", "マイグレーションの実行に失敗しました", err)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
