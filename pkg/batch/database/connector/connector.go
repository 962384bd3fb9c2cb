package connector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	Connect(cfg config.DatabaseConfig) (*sql.DB, error)
}

var (
	mu         sync.RWMutex
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名で DBConnector を登録します。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	dbType = strings.ToLower(dbType)
	if _, exists := connectors[dbType]; exists {
		logger.Warnf("DBConnector '%s' は既に登録されています。上書きします。", dbType)
	}
	connectors[dbType] = connector
}

// RegisteredTypes は登録済みのデータベースタイプを返します。
func RegisteredTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(connectors))
	for t := range connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// GetSQLDB は設定に基づいて登録されたコネクタを選択し、接続を確立します。
func GetSQLDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	mu.RLock()
	c, ok := connectors[strings.ToLower(cfg.Type)]
	mu.RUnlock()
	if !ok {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("未対応のデータベースタイプ: %s", cfg.Type), nil)
	}
	return c.Connect(cfg)
}

// NewDBConnectionFromConfig は接続を確立し、Ping で確認した上で DBConnection と元の *sql.DB を返します。
// *sql.DB はマイグレーションに使用します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, *sql.DB, error) {
	rawDB, err := GetSQLDB(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := rawDB.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, nil, exception.NewResourceAccessError("database", fmt.Sprintf("%s への Ping に失敗しました", cfg.Type), err)
	}
	logger.Debugf("%s に正常に接続しました。", cfg.Type)
	return database.NewSQLDBAdapter(rawDB), rawDB, nil
}

// open はドライバ名と DSN で接続を開き、コネクションプール設定を適用します。
func open(driverName, dsn string, cfg config.DatabaseConfig) (*sql.DB, error) {
	if dsn == "" {
		return nil, exception.NewConfigurationError("database", fmt.Sprintf("%s の接続文字列が空です", cfg.Type), nil)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, exception.NewResourceAccessError("database", fmt.Sprintf("%s への接続に失敗しました", cfg.Type), err)
	}
	pool := cfg.ConnectionPool
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)
	}
	return db, nil
}
