package connector

import (
	"database/sql"

	"github.com/snowflakedb/gosnowflake"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

// snowflakeConnector は Snowflake に接続します。SQL ライターのデータソース専用で、
// ジョブリポジトリのマイグレーションには対応していません。
type snowflakeConnector struct{}

func (c *snowflakeConnector) Connect(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		var err error
		dsn, err = snowflakeDSN(cfg)
		if err != nil {
			return nil, err
		}
	}
	return open("snowflake", dsn, cfg)
}

func snowflakeDSN(cfg config.DatabaseConfig) (string, error) {
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return "", exception.NewConfigurationError("database", "Snowflake の接続設定が不正です", err)
	}
	return dsn, nil
}

func init() {
	RegisterConnector("snowflake", &snowflakeConnector{})
}
