package listener

import (
	"context"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// LoggingStepListener はステップの開始と終了をログに出力する StepExecutionListener の実装です。
type LoggingStepListener struct{}

// NewLoggingStepListener は新しい LoggingStepListener のインスタンスを作成します。
func NewLoggingStepListener() *LoggingStepListener {
	return &LoggingStepListener{}
}

// BeforeStep はステップの実行前に呼び出されます。
func (l *LoggingStepListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' を開始します。(ID: %s)", stepExecution.StepName, stepExecution.ID)
}

// AfterStep はステップの実行後に呼び出されます。成功・失敗に関わらず呼び出されます。
func (l *LoggingStepListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	logger.Infof("ステップ '%s' が終了しました。ステータス: %s, 読み込み: %d, 書き込み: %d, フィルタ: %d, コミット: %d, ロールバック: %d",
		stepExecution.StepName, stepExecution.Status,
		stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
		stepExecution.CommitCount, stepExecution.RollbackCount)
	for _, err := range stepExecution.Failures {
		logger.Errorf("ステップ '%s' のエラー: %v", stepExecution.StepName, err)
	}
}

// LoggingJobListener はジョブの開始と終了をログに出力する JobExecutionListener の実装です。
type LoggingJobListener struct{}

// NewLoggingJobListener は新しい LoggingJobListener のインスタンスを作成します。
func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

// BeforeJob はジョブの実行前に呼び出されます。
func (l *LoggingJobListener) BeforeJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("ジョブ '%s' を開始します。(実行ID: %s)", jobExecution.JobName, jobExecution.ID)
}

// AfterJob はジョブの実行後に呼び出されます。
func (l *LoggingJobListener) AfterJob(ctx context.Context, jobExecution *core.JobExecution) {
	logger.Infof("ジョブ '%s' が終了しました。ステータス: %s, 終了コード: %s",
		jobExecution.JobName, jobExecution.Status, jobExecution.ExitStatus)
}

var (
	_ core.StepExecutionListener = (*LoggingStepListener)(nil)
	_ core.JobExecutionListener  = (*LoggingJobListener)(nil)
)
