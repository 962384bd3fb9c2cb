package connector

import (
	"database/sql"

	"github.com/go-sql-driver/mysql"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

// mysqlConnector は MySQL に接続します。
// ジョブリポジトリが時刻列を time.Time で読み込むため parseTime を常に有効にします。
type mysqlConnector struct{}

func (c *mysqlConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	mc, err := mysql.ParseDSN(cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewConfigurationError("database", "MySQL の接続文字列が不正です", err)
	}
	mc.ParseTime = true
	return open("mysql", mc.FormatDSN(), cfg)
}

func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
