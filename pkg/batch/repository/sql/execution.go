package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/repository/job"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
	"github.com/tigerroll/autobatch/pkg/batch/util/serialization"
)

// SQLJobExecutionRepository は JobExecution インターフェースの SQL データベース実装です。
type SQLJobExecutionRepository struct {
	store
}

// NewSQLJobExecutionRepository は新しい SQLJobExecutionRepository のインスタンスを作成します。
func NewSQLJobExecutionRepository(dbConn database.DBConnection, dbType string) *SQLJobExecutionRepository {
	return &SQLJobExecutionRepository{store: newStore(dbConn, dbType)}
}

func encodeJobExecution(je *core.JobExecution) (params, failures, ec string, err error) {
	p, err := serialization.MarshalJobParameters(je.Parameters)
	if err != nil {
		return "", "", "", err
	}
	f, err := serialization.MarshalFailures(je.Failures)
	if err != nil {
		return "", "", "", err
	}
	c, err := serialization.MarshalExecutionContext(je.ExecutionContext)
	if err != nil {
		return "", "", "", err
	}
	return string(p), string(f), string(c), nil
}

// SaveJobExecution は新しい JobExecution をデータベースに保存します。
func (r *SQLJobExecutionRepository) SaveJobExecution(ctx context.Context, je *core.JobExecution) error {
	params, failures, ec, err := encodeJobExecution(je)
	if err != nil {
		return err
	}
	_, err = r.dbConnection.ExecContext(ctx, r.q(`
		INSERT INTO batch_job_execution (id, job_instance_id, job_name, job_parameters, status, exit_status, exit_code,
			start_time, end_time, create_time, last_updated, failures, execution_context, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		je.ID, je.JobInstanceID, je.JobName, params,
		string(je.Status), string(je.ExitStatus), je.ExitCode,
		nullTime(je.StartTime), nullTime(je.EndTime), je.CreateTime, je.LastUpdated,
		failures, ec, je.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の保存に失敗しました", je.ID), err)
	}
	logger.Debugf("JobExecution (ID: %s) を保存しました。", je.ID)
	return nil
}

// UpdateJobExecution は既存の JobExecution の状態を更新します。
func (r *SQLJobExecutionRepository) UpdateJobExecution(ctx context.Context, je *core.JobExecution) error {
	_, failures, ec, err := encodeJobExecution(je)
	if err != nil {
		return err
	}
	je.LastUpdated = time.Now()
	je.Version++
	res, err := r.dbConnection.ExecContext(ctx, r.q(`
		UPDATE batch_job_execution
		SET status = ?, exit_status = ?, exit_code = ?, start_time = ?, end_time = ?, last_updated = ?,
			failures = ?, execution_context = ?, version = ?
		WHERE id = ?`),
		string(je.Status), string(je.ExitStatus), je.ExitCode,
		nullTime(je.StartTime), nullTime(je.EndTime), je.LastUpdated,
		failures, ec, je.Version, je.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", je.ID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exception.NewBatchError(module, fmt.Sprintf("JobExecution (ID: %s) が見つかりません", je.ID), nil)
	}
	return nil
}

// FindLatestJobExecution は JobInstance に属する最新の JobExecution を返します。
func (r *SQLJobExecutionRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	rows, err := r.dbConnection.QueryContext(ctx, r.q(`
		SELECT id, job_instance_id, job_name, job_parameters, status, exit_status, exit_code,
			start_time, end_time, create_time, last_updated, failures, execution_context, version
		FROM batch_job_execution
		WHERE job_instance_id = ?
		ORDER BY create_time DESC`), jobInstanceID)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("JobExecution (JobInstanceID: %s) の検索に失敗しました", jobInstanceID), err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		je                          core.JobExecution
		status, exitStatus          string
		params, failures, ec        sql.NullString
		start, end, created, update sql.NullTime
	)
	if err := rows.Scan(&je.ID, &je.JobInstanceID, &je.JobName, &params, &status, &exitStatus, &je.ExitCode,
		&start, &end, &created, &update, &failures, &ec, &je.Version); err != nil {
		return nil, exception.NewBatchError(module, "JobExecution の読み込みに失敗しました", err)
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime = fromNullTime(start)
	je.EndTime = fromNullTime(end)
	je.CreateTime = fromNullTime(created)
	je.LastUpdated = fromNullTime(update)
	if je.Parameters, err = serialization.UnmarshalJobParameters([]byte(params.String)); err != nil {
		return nil, err
	}
	if je.Failures, err = serialization.UnmarshalFailures([]byte(failures.String)); err != nil {
		return nil, err
	}
	if je.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(ec.String)); err != nil {
		return nil, err
	}
	return &je, nil
}

var _ job.JobExecution = (*SQLJobExecutionRepository)(nil)
