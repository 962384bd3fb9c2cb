package core_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

func TestExecutionContext_GetIntAfterJSONRoundTrip(t *testing.T) {
	ec := core.NewExecutionContext()
	ec.Put("fooReader.read.count", 42)

	data, err := json.Marshal(ec)
	require.NoError(t, err)

	restored := core.NewExecutionContext()
	require.NoError(t, json.Unmarshal(data, &restored))

	n, ok := restored.GetInt("fooReader.read.count")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = restored.GetInt("missing")
	assert.False(t, ok)
}

func TestExecutionContext_CopyIsIndependent(t *testing.T) {
	ec := core.ExecutionContext{"a": 1}
	cp := ec.Copy()
	cp.Put("b", 2)

	assert.Len(t, ec, 1)
	assert.Len(t, cp, 2)

	ec.Merge(cp)
	assert.Equal(t, 2, ec.Get("b"))
}

func TestJobKey_IsStableAcrossParameterOrder(t *testing.T) {
	p1 := core.NewJobParameters()
	p1.Put("date", "2024-01-01")
	p1.Put("run.id", 1)

	p2 := core.NewJobParameters()
	p2.Put("run.id", 1)
	p2.Put("date", "2024-01-01")

	assert.Equal(t, core.JobKey("job", p1), core.JobKey("job", p2))
	assert.NotEqual(t, core.JobKey("job", p1), core.JobKey("other", p1))
	assert.NotEqual(t, core.JobKey("job", p1), core.JobKey("job", core.NewJobParameters()))
	assert.Equal(t, core.JobKey("job", core.JobParameters{}), core.JobKey("job", core.NewJobParameters()))
}

func TestStepExecution_Result(t *testing.T) {
	je := core.NewJobExecution("instance", "job", core.NewJobParameters())
	se := core.NewStepExecution("job.step", je)
	require.Len(t, je.StepExecutions, 1)

	se.MarkAsStarted()
	se.ReadCount = 3
	se.WriteCount = 2
	se.FilterCount = 1
	first := errors.New("first")
	se.MarkAsFailed(first)
	se.AddFailureException(errors.New("second"))

	res := se.Result()
	assert.Equal(t, core.BatchStatusFailed, res.Status)
	assert.Equal(t, 3, res.ReadCount)
	assert.Equal(t, 2, res.WriteCount)
	assert.Equal(t, 1, res.FilterCount)
	assert.Same(t, first, res.FailureCause)
	assert.True(t, res.Status.IsFinished())
}
