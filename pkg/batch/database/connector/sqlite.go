package connector

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite" // SQLite ドライバ (cgo 不要)

	"github.com/tigerroll/autobatch/pkg/batch/config"
)

// sqliteConnector は SQLite に接続します。
// インメモリデータベースは接続ごとに別のデータベースになるため、接続数を 1 に固定します。
type sqliteConnector struct{}

func (c *sqliteConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.ConnectionString()
	db, err := open("sqlite", dsn, cfg)
	if err != nil {
		return nil, err
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func init() {
	RegisterConnector("sqlite", &sqliteConnector{})
}
