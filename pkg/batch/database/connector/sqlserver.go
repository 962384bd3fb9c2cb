package connector

import (
	"database/sql"

	_ "github.com/microsoft/go-mssqldb" // SQL Server ドライバ

	"github.com/tigerroll/autobatch/pkg/batch/config"
)

type sqlserverConnector struct{}

func (c *sqlserverConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	return open("sqlserver", cfg.ConnectionString(), cfg)
}

func init() {
	RegisterConnector("sqlserver", &sqlserverConnector{})
}
