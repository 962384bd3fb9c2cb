package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/repository/job"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
	"github.com/tigerroll/autobatch/pkg/batch/util/serialization"
)

// SQLJobInstanceRepository は JobInstance インターフェースの SQL データベース実装です。
type SQLJobInstanceRepository struct {
	store
}

// NewSQLJobInstanceRepository は新しい SQLJobInstanceRepository のインスタンスを作成します。
func NewSQLJobInstanceRepository(dbConn database.DBConnection, dbType string) *SQLJobInstanceRepository {
	return &SQLJobInstanceRepository{store: newStore(dbConn, dbType)}
}

// SaveJobInstance は新しい JobInstance をデータベースに保存します。
func (r *SQLJobInstanceRepository) SaveJobInstance(ctx context.Context, jobInstance *core.JobInstance) error {
	paramsJSON, err := serialization.MarshalJobParameters(jobInstance.Parameters)
	if err != nil {
		return err
	}
	if jobInstance.ParametersHash == "" {
		jobInstance.ParametersHash = core.JobKey(jobInstance.JobName, jobInstance.Parameters)
	}

	_, err = r.dbConnection.ExecContext(ctx, r.q(`
		INSERT INTO batch_job_instance (id, job_name, job_key, job_parameters, create_time, version)
		VALUES (?, ?, ?, ?, ?, ?)`),
		jobInstance.ID,
		jobInstance.JobName,
		jobInstance.ParametersHash,
		string(paramsJSON),
		jobInstance.CreateTime,
		jobInstance.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobInstance (ID: %s) の保存に失敗しました", jobInstance.ID), err)
	}
	logger.Debugf("JobInstance (ID: %s, JobName: %s) を保存しました。", jobInstance.ID, jobInstance.JobName)
	return nil
}

// FindJobInstanceByJobNameAndParameters はジョブ名とパラメータのハッシュで JobInstance を検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	key := core.JobKey(jobName, params)
	row := r.dbConnection.QueryRowContext(ctx, r.q(`
		SELECT id, job_name, job_key, job_parameters, create_time, version
		FROM batch_job_instance
		WHERE job_name = ? AND job_key = ?`), jobName, key)

	var (
		ji         core.JobInstance
		paramsJSON sql.NullString
		createTime sql.NullTime
	)
	err := row.Scan(&ji.ID, &ji.JobName, &ji.ParametersHash, &paramsJSON, &createTime, &ji.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobInstance (JobName: %s) の検索に失敗しました", jobName), err)
	}
	ji.CreateTime = fromNullTime(createTime)
	if ji.Parameters, err = serialization.UnmarshalJobParameters([]byte(paramsJSON.String)); err != nil {
		return nil, err
	}
	return &ji, nil
}

var _ job.JobInstance = (*SQLJobInstanceRepository)(nil)
