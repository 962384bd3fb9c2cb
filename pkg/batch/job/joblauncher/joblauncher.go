// Package joblauncher は Job を JobParameters とともに起動し、実行のライフサイクルを管理します。
package joblauncher

import (
	"context"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

// JobLauncher は Job を JobParameters とともに起動するためのインターフェースです。
type JobLauncher interface {
	// Launch は job を起動し、終了した JobExecution を返します。
	// ジョブの実行エラーは JobExecution に記録されると同時に error としても返されます。
	Launch(ctx context.Context, job core.Job, params core.JobParameters) (*core.JobExecution, error)
}
