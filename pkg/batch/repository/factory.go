package repository

import (
	"context"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database/connector"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// NewJobRepository は設定に基づいて JobRepository を作成します。
// database.type が未設定の場合は MemoryJobRepository を返します。
// SQL の場合は接続を確立し、マイグレーションを適用します。
func NewJobRepository(ctx context.Context, cfg config.DatabaseConfig) (JobRepository, error) {
	if !cfg.IsConfigured() {
		logger.Infof("database が設定されていないため、インメモリの JobRepository を使用します。")
		return NewMemoryJobRepository(), nil
	}

	conn, rawDB, err := connector.NewDBConnectionFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(rawDB, cfg.Type, cfg.MigrationsTable); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Infof("SQL JobRepository を初期化しました。DBタイプ: %s", cfg.Type)
	return NewSQLJobRepository(conn, cfg.Type), nil
}
