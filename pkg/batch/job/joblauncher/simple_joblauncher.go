package joblauncher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/repository"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "job_launcher"

var (
	// ErrJobInstanceAlreadyComplete は完了済みの JobInstance を同じパラメータで再実行しようとしたことを表します。
	ErrJobInstanceAlreadyComplete = errors.New("job instance already complete")
	// ErrJobExecutionAlreadyRunning は JobInstance の実行が既に進行中であることを表します。
	ErrJobExecutionAlreadyRunning = errors.New("job execution already running")
	// ErrJobExecutionNotRunning は停止対象の JobExecution が実行中でないことを表します。
	ErrJobExecutionNotRunning = errors.New("job execution not running")
)

// SimpleJobLauncher は JobLauncher インターフェースのシンプルな実装です。
// JobExecution の基本的なライフサイクル管理と JobRepository を使用した永続化を行います。
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository

	activeJobCancellations map[string]context.CancelFunc
	mu                     sync.Mutex
}

// NewSimpleJobLauncher は新しい SimpleJobLauncher のインスタンスを作成します。
func NewSimpleJobLauncher(jobRepository repository.JobRepository) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository:          jobRepository,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

func (l *SimpleJobLauncher) registerCancelFunc(executionID string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancel
}

func (l *SimpleJobLauncher) unregisterCancelFunc(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.activeJobCancellations[executionID]; ok {
		cancel()
		delete(l.activeJobCancellations, executionID)
	}
}

// Stop は実行中の JobExecution にキャンセルを要求します。
// ステップは処理中のチャンクを終えた後に停止します。
func (l *SimpleJobLauncher) Stop(executionID string) error {
	l.mu.Lock()
	cancel, ok := l.activeJobCancellations[executionID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobExecutionNotRunning, executionID)
	}
	logger.Infof("JobExecution (ID: %s) に停止を要求しました。", executionID)
	cancel()
	return nil
}

// resolveInstance は params に対応する JobInstance を取得または作成します。
// 完了済みの JobInstance が見つかった場合、Incrementer があれば新しいパラメータで作成し直します。
func (l *SimpleJobLauncher) resolveInstance(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobInstance, core.JobParameters, error) {
	jobName := job.JobName()
	for {
		instance, err := l.jobRepository.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
		if err != nil {
			return nil, params, exception.NewBatchError(module, "JobInstance の検索に失敗しました", err)
		}
		if instance == nil {
			instance = core.NewJobInstance(jobName, params)
			if err := l.jobRepository.SaveJobInstance(ctx, instance); err != nil {
				return nil, params, exception.NewBatchError(module, "新しい JobInstance の保存に失敗しました", err)
			}
			logger.Infof("新しい JobInstance (ID: %s, JobName: %s) を作成しました。", instance.ID, jobName)
			return instance, params, nil
		}

		latest, err := l.jobRepository.FindLatestJobExecution(ctx, instance.ID)
		if err != nil {
			return nil, params, exception.NewBatchError(module, "JobExecution の検索に失敗しました", err)
		}
		if latest == nil {
			return instance, params, nil
		}

		switch latest.Status {
		case core.BatchStatusStarting, core.BatchStatusStarted, core.BatchStatusStopping:
			return nil, params, fmt.Errorf("%w: JobInstance (ID: %s) の JobExecution (ID: %s)", ErrJobExecutionAlreadyRunning, instance.ID, latest.ID)
		case core.BatchStatusCompleted, core.BatchStatusAbandoned:
			incrementer := job.Incrementer()
			if incrementer == nil {
				return nil, params, fmt.Errorf("%w: ジョブ '%s' (JobInstance ID: %s)", ErrJobInstanceAlreadyComplete, jobName, instance.ID)
			}
			params = incrementer.GetNext(params)
			logger.Infof("JobParametersIncrementer を使用して新しい JobParameters を生成しました: %+v", params.Params)
		default:
			logger.Infof("JobInstance (ID: %s) を前回の実行 (ID: %s, ステータス: %s) からリスタートします。", instance.ID, latest.ID, latest.Status)
			return instance, params, nil
		}
	}
}

// Launch は job を起動し、JobExecution の状態を JobRepository に保存します。
func (l *SimpleJobLauncher) Launch(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error) {
	if job == nil {
		return nil, exception.NewConfigurationError(module, "起動するジョブがありません", nil)
	}
	jobName := job.JobName()

	instance, params, err := l.resolveInstance(ctx, job, params)
	if err != nil {
		logger.Errorf("ジョブ '%s' を起動できません: %v", jobName, err)
		return nil, err
	}

	jobExecution := core.NewJobExecution(instance.ID, jobName, params)
	jobCtx, cancel := context.WithCancel(ctx)
	jobExecution.CancelFunc = cancel
	l.registerCancelFunc(jobExecution.ID, cancel)
	defer l.unregisterCancelFunc(jobExecution.ID)

	if err := l.jobRepository.SaveJobExecution(ctx, jobExecution); err != nil {
		return jobExecution, exception.NewBatchError(module, "JobExecution の初期保存に失敗しました", err)
	}

	jobExecution.MarkAsStarted()
	if err := l.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		logger.Errorf("JobExecution (ID: %s) の Started 状態への更新に失敗しました: %v", jobExecution.ID, err)
	}

	logger.Infof("Job '%s' (Execution ID: %s, Job Instance ID: %s) を実行します。", jobName, jobExecution.ID, instance.ID)
	runErr := job.Run(jobCtx, jobExecution)
	if runErr != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(runErr)
	}

	if updateErr := l.jobRepository.UpdateJobExecution(context.WithoutCancel(ctx), jobExecution); updateErr != nil {
		logger.Errorf("JobExecution (ID: %s) の最終状態の更新に失敗しました: %v", jobExecution.ID, updateErr)
		if runErr == nil {
			runErr = exception.NewBatchError(module, "JobExecution 最終状態の永続化に失敗しました", updateErr)
		}
	}
	return jobExecution, runErr
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)
