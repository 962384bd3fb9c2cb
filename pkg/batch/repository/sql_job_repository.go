package repository

import (
	"github.com/tigerroll/autobatch/pkg/batch/database"
	sqlrepo "github.com/tigerroll/autobatch/pkg/batch/repository/sql"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// SQLJobRepository は JobRepository インターフェースの SQL データベース実装です。
// 各リポジトリの具体的な実装を埋め込み、委譲します。
type SQLJobRepository struct {
	dbConnection database.DBConnection

	*sqlrepo.SQLJobInstanceRepository
	*sqlrepo.SQLJobExecutionRepository
	*sqlrepo.SQLStepExecutionRepository
}

// NewSQLJobRepository は新しい SQLJobRepository のインスタンスを作成します。
// スキーマは Migrate で作成済みであることを前提とします。
func NewSQLJobRepository(dbConn database.DBConnection, dbType string) *SQLJobRepository {
	return &SQLJobRepository{
		dbConnection:               dbConn,
		SQLJobInstanceRepository:   sqlrepo.NewSQLJobInstanceRepository(dbConn, dbType),
		SQLJobExecutionRepository:  sqlrepo.NewSQLJobExecutionRepository(dbConn, dbType),
		SQLStepExecutionRepository: sqlrepo.NewSQLStepExecutionRepository(dbConn, dbType),
	}
}

// GetDBConnection はこのリポジトリが使用するデータベース接続を返します。
func (r *SQLJobRepository) GetDBConnection() database.DBConnection {
	return r.dbConnection
}

// Close はデータベース接続を閉じます。
func (r *SQLJobRepository) Close() error {
	if r.dbConnection == nil {
		return nil
	}
	if err := r.dbConnection.Close(); err != nil {
		return exception.NewBatchError("job_repository", "データベース接続を閉じるのに失敗しました", err)
	}
	logger.Debugf("Job Repository のデータベース接続を閉じました。")
	return nil
}

var _ JobRepository = (*SQLJobRepository)(nil)
