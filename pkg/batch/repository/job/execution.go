package job

import (
	"context"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

// JobExecution は JobExecution の永続化と取得に関する操作を定義します。
type JobExecution interface {
	SaveJobExecution(ctx context.Context, jobExecution *core.JobExecution) error
	UpdateJobExecution(ctx context.Context, jobExecution *core.JobExecution) error

	// FindLatestJobExecution は JobInstance に属する最新の JobExecution を返します。
	// 見つからない場合は (nil, nil) を返します。
	FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error)
}
