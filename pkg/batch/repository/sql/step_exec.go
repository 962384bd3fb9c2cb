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

// SQLStepExecutionRepository は StepExecution インターフェースの SQL データベース実装です。
type SQLStepExecutionRepository struct {
	store
}

// NewSQLStepExecutionRepository は新しい SQLStepExecutionRepository のインスタンスを作成します。
func NewSQLStepExecutionRepository(dbConn database.DBConnection, dbType string) *SQLStepExecutionRepository {
	return &SQLStepExecutionRepository{store: newStore(dbConn, dbType)}
}

// SaveStepExecution は新しい StepExecution をデータベースに保存します。
func (r *SQLStepExecutionRepository) SaveStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.JobExecution == nil {
		return exception.NewBatchError(module, "StepExecution が JobExecution に紐づいていません", nil)
	}
	failures, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return err
	}

	_, err = r.dbConnection.ExecContext(ctx, r.q(`
		INSERT INTO batch_step_execution (id, job_execution_id, step_name, status, exit_status,
			read_count, write_count, filter_count, commit_count, rollback_count,
			start_time, end_time, last_updated, failures, execution_context, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		se.ID, se.JobExecution.ID, se.StepName, string(se.Status), string(se.ExitStatus),
		se.ReadCount, se.WriteCount, se.FilterCount, se.CommitCount, se.RollbackCount,
		nullTime(se.StartTime), nullTime(se.EndTime), se.LastUpdated,
		string(failures), string(ec), se.Version,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", se.ID), err)
	}
	logger.Debugf("StepExecution (ID: %s, JobExecutionID: %s) を保存しました。", se.ID, se.JobExecution.ID)
	return nil
}

// UpdateStepExecution は既存の StepExecution の状態と ExecutionContext を更新します。
func (r *SQLStepExecutionRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	failures, err := serialization.MarshalFailures(se.Failures)
	if err != nil {
		return err
	}
	ec, err := serialization.MarshalExecutionContext(se.ExecutionContext)
	if err != nil {
		return err
	}
	se.LastUpdated = time.Now()
	se.Version++

	res, err := r.dbConnection.ExecContext(ctx, r.q(`
		UPDATE batch_step_execution
		SET status = ?, exit_status = ?, read_count = ?, write_count = ?, filter_count = ?,
			commit_count = ?, rollback_count = ?, start_time = ?, end_time = ?, last_updated = ?,
			failures = ?, execution_context = ?, version = ?
		WHERE id = ?`),
		string(se.Status), string(se.ExitStatus), se.ReadCount, se.WriteCount, se.FilterCount,
		se.CommitCount, se.RollbackCount, nullTime(se.StartTime), nullTime(se.EndTime), se.LastUpdated,
		string(failures), string(ec), se.Version, se.ID,
	)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の更新に失敗しました", se.ID), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) が見つかりません", se.ID), nil)
	}
	return nil
}

// FindLatestStepExecution は JobInstance 内で指定された名前の最新の StepExecution を返します。
func (r *SQLStepExecutionRepository) FindLatestStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error) {
	rows, err := r.dbConnection.QueryContext(ctx, r.q(`
		SELECT se.id, se.step_name, se.status, se.exit_status,
			se.read_count, se.write_count, se.filter_count, se.commit_count, se.rollback_count,
			se.start_time, se.end_time, se.last_updated, se.failures, se.execution_context, se.version
		FROM batch_step_execution se
		JOIN batch_job_execution je ON se.job_execution_id = je.id
		WHERE je.job_instance_id = ? AND se.step_name = ?
		ORDER BY je.create_time DESC, se.last_updated DESC`), jobInstanceID, stepName)
	if err != nil {
		return nil, exception.NewBatchError(module, fmt.Sprintf("StepExecution (Step: %s) の検索に失敗しました", stepName), err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		se                 core.StepExecution
		status, exitStatus string
		failures, ec       sql.NullString
		start, end, update sql.NullTime
	)
	if err := rows.Scan(&se.ID, &se.StepName, &status, &exitStatus,
		&se.ReadCount, &se.WriteCount, &se.FilterCount, &se.CommitCount, &se.RollbackCount,
		&start, &end, &update, &failures, &ec, &se.Version); err != nil {
		return nil, exception.NewBatchError(module, "StepExecution の読み込みに失敗しました", err)
	}
	se.Status = core.JobStatus(status)
	se.ExitStatus = core.ExitStatus(exitStatus)
	se.StartTime = fromNullTime(start)
	se.EndTime = fromNullTime(end)
	se.LastUpdated = fromNullTime(update)
	if se.Failures, err = serialization.UnmarshalFailures([]byte(failures.String)); err != nil {
		return nil, err
	}
	if se.ExecutionContext, err = serialization.UnmarshalExecutionContext([]byte(ec.String)); err != nil {
		return nil, err
	}
	return &se, nil
}

var _ job.StepExecution = (*SQLStepExecutionRepository)(nil)
