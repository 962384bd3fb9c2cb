// Package runner はステップを実行するジョブの実装を提供します。
package runner

import (
	"context"
	"fmt"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	repojob "github.com/tigerroll/autobatch/pkg/batch/repository/job"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "simple_job"

// SimpleJob は単一のステップを実行する core.Job の実装です。
// リスタート時は前回失敗した StepExecution の ExecutionContext を引き継ぎ、完了済みのステップは再実行しません。
type SimpleJob struct {
	name         string
	step         core.Step
	repository   repojob.StepExecution
	incrementer  core.JobParametersIncrementer
	jobListeners []core.JobExecutionListener
}

// NewSimpleJob は新しい SimpleJob のインスタンスを作成します。
func NewSimpleJob(name string, step core.Step, repository repojob.StepExecution) (*SimpleJob, error) {
	if name == "" {
		return nil, exception.NewConfigurationError(module, "ジョブ名が設定されていません", nil)
	}
	if step == nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("ジョブ '%s' にステップがありません", name), nil)
	}
	if repository == nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("ジョブ '%s' に JobRepository がありません", name), nil)
	}
	return &SimpleJob{name: name, step: step, repository: repository}, nil
}

// JobName はジョブ名を返します。
func (j *SimpleJob) JobName() string {
	return j.name
}

// Step はジョブの唯一のステップを返します。
func (j *SimpleJob) Step() core.Step {
	return j.step
}

// Incrementer は JobParametersIncrementer を返します。
func (j *SimpleJob) Incrementer() core.JobParametersIncrementer {
	return j.incrementer
}

// SetIncrementer は JobParametersIncrementer を設定します。
func (j *SimpleJob) SetIncrementer(incrementer core.JobParametersIncrementer) {
	j.incrementer = incrementer
}

// RegisterListener は JobExecutionListener を登録します。
func (j *SimpleJob) RegisterListener(l core.JobExecutionListener) {
	j.jobListeners = append(j.jobListeners, l)
}

// Run はステップを実行し、結果を JobExecution に反映します。
func (j *SimpleJob) Run(ctx context.Context, jobExecution *core.JobExecution) (err error) {
	logger.Infof("ジョブ '%s' (Execution ID: %s) を開始します。", j.name, jobExecution.ID)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}
	defer func() {
		for _, l := range j.jobListeners {
			l.AfterJob(context.WithoutCancel(ctx), jobExecution)
		}
		logger.Infof("ジョブ '%s' (Execution ID: %s) が終了しました。最終ステータス: %s, 終了ステータス: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	}()

	stepName := j.step.StepName()
	previous, err := j.repository.FindLatestStepExecution(ctx, jobExecution.JobInstanceID, stepName)
	if err != nil {
		err = exception.NewBatchError(module, fmt.Sprintf("ステップ '%s' の前回の実行を取得できません", stepName), err)
		jobExecution.MarkAsFailed(err)
		return err
	}
	if previous != nil && previous.Status == core.BatchStatusCompleted {
		logger.Infof("ステップ '%s' は完了済みのためスキップします。", stepName)
		jobExecution.MarkAsCompleted()
		return nil
	}

	stepExecution := core.NewStepExecution(stepName, jobExecution)
	if previous != nil && previous.ExecutionContext != nil {
		stepExecution.ExecutionContext = previous.ExecutionContext.Copy()
		logger.Infof("ステップ '%s' を前回の実行 (ID: %s, ステータス: %s) から再開します。", stepName, previous.ID, previous.Status)
	}
	if err = j.repository.SaveStepExecution(ctx, stepExecution); err != nil {
		err = exception.NewBatchError(module, fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", stepExecution.ID), err)
		jobExecution.MarkAsFailed(err)
		return err
	}

	if err = j.step.Execute(ctx, jobExecution, stepExecution); err != nil {
		if stepExecution.Status == core.BatchStatusStopped {
			jobExecution.MarkAsStopped(err)
		} else {
			jobExecution.MarkAsFailed(err)
		}
		return err
	}
	jobExecution.MarkAsCompleted()
	return nil
}

var _ core.Job = (*SimpleJob)(nil)
