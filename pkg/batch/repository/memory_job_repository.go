package repository

import (
	"context"
	"sync"
	"time"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

// MemoryJobRepository はプロセス内にメタデータを保持する JobRepository の実装です。
// database が設定されていない場合に使用します。保存時に値をコピーするため、
// 呼び出し側がオブジェクトを変更しても Update するまで反映されません。
type MemoryJobRepository struct {
	mu             sync.RWMutex
	instances      map[string]*core.JobInstance // key: job key
	executions     map[string]*core.JobExecution
	executionOrder []string
	steps          map[string]*core.StepExecution
	stepOrder      []string
	stepToJobExec  map[string]string
}

// NewMemoryJobRepository は新しい MemoryJobRepository を作成します。
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		instances:     make(map[string]*core.JobInstance),
		executions:    make(map[string]*core.JobExecution),
		steps:         make(map[string]*core.StepExecution),
		stepToJobExec: make(map[string]string),
	}
}

func (r *MemoryJobRepository) SaveJobInstance(ctx context.Context, ji *core.JobInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ji.ParametersHash == "" {
		ji.ParametersHash = core.JobKey(ji.JobName, ji.Parameters)
	}
	if _, exists := r.instances[ji.ParametersHash]; exists {
		return exception.NewBatchErrorf("job_repository", "JobInstance (JobName: %s) は既に存在します", ji.JobName)
	}
	c := *ji
	r.instances[ji.ParametersHash] = &c
	return nil
}

func (r *MemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ji, ok := r.instances[core.JobKey(jobName, params)]
	if !ok {
		return nil, nil
	}
	c := *ji
	return &c, nil
}

func copyJobExecution(je *core.JobExecution) *core.JobExecution {
	c := *je
	c.ExecutionContext = je.ExecutionContext.Copy()
	c.Failures = append([]error(nil), je.Failures...)
	c.StepExecutions = nil
	c.CancelFunc = nil
	return &c
}

func (r *MemoryJobRepository) SaveJobExecution(ctx context.Context, je *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[je.ID]; exists {
		return exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s) は既に存在します", je.ID)
	}
	r.executions[je.ID] = copyJobExecution(je)
	r.executionOrder = append(r.executionOrder, je.ID)
	return nil
}

func (r *MemoryJobRepository) UpdateJobExecution(ctx context.Context, je *core.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executions[je.ID]; !exists {
		return exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s) が見つかりません", je.ID)
	}
	je.LastUpdated = time.Now()
	je.Version++
	r.executions[je.ID] = copyJobExecution(je)
	return nil
}

func (r *MemoryJobRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.executionOrder) - 1; i >= 0; i-- {
		je := r.executions[r.executionOrder[i]]
		if je.JobInstanceID == jobInstanceID {
			return copyJobExecution(je), nil
		}
	}
	return nil, nil
}

func copyStepExecution(se *core.StepExecution) *core.StepExecution {
	c := *se
	c.ExecutionContext = se.ExecutionContext.Copy()
	c.Failures = append([]error(nil), se.Failures...)
	c.JobExecution = nil
	return &c
}

func (r *MemoryJobRepository) SaveStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.JobExecution == nil {
		return exception.NewBatchError("job_repository", "StepExecution が JobExecution に紐づいていません", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[se.ID]; exists {
		return exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s) は既に存在します", se.ID)
	}
	r.steps[se.ID] = copyStepExecution(se)
	r.stepOrder = append(r.stepOrder, se.ID)
	r.stepToJobExec[se.ID] = se.JobExecution.ID
	return nil
}

func (r *MemoryJobRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[se.ID]; !exists {
		return exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s) が見つかりません", se.ID)
	}
	se.LastUpdated = time.Now()
	se.Version++
	r.steps[se.ID] = copyStepExecution(se)
	return nil
}

func (r *MemoryJobRepository) FindLatestStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.stepOrder) - 1; i >= 0; i-- {
		se := r.steps[r.stepOrder[i]]
		if se.StepName != stepName {
			continue
		}
		je, ok := r.executions[r.stepToJobExec[se.ID]]
		if ok && je.JobInstanceID == jobInstanceID {
			return copyStepExecution(se), nil
		}
	}
	return nil, nil
}

func (r *MemoryJobRepository) Close() error {
	return nil
}

var _ JobRepository = (*MemoryJobRepository)(nil)
