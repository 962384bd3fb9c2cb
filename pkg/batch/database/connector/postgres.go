package connector

import (
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx ドライバ
	_ "github.com/lib/pq"              // PostgreSQL ドライバ

	"github.com/tigerroll/autobatch/pkg/batch/config"
)

// postgresConnector は lib/pq で PostgreSQL 互換データベースに接続します。
// Redshift も同じドライバを使用します。
type postgresConnector struct{}

func (c *postgresConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("postgres", cfg.ConnectionString(), cfg)
}

// pgxConnector は pgx の database/sql ドライバで PostgreSQL に接続します。
type pgxConnector struct{}

func (c *pgxConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("pgx", cfg.ConnectionString(), cfg)
}

func init() {
	RegisterConnector("postgres", &postgresConnector{})
	RegisterConnector("redshift", &postgresConnector{})
	RegisterConnector("pgx", &pgxConnector{})
}
