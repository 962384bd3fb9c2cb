package job

import (
	"context"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

// StepExecution は StepExecution の永続化と取得に関する操作を定義します。
type StepExecution interface {
	SaveStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// UpdateStepExecution はチャンクのコミットごとにも呼ばれ、ExecutionContext をチェックポイントとして保存します。
	UpdateStepExecution(ctx context.Context, stepExecution *core.StepExecution) error

	// FindLatestStepExecution は JobInstance 内で指定された名前の最新の StepExecution を返します。
	// 返される StepExecution の JobExecution は nil です。見つからない場合は (nil, nil) を返します。
	FindLatestStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error)
}
