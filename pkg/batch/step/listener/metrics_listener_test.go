package listener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

func TestMetricsListener(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	l, err := NewMetricsListener(reg)
	require.NoError(t, err)

	je := core.NewJobExecution("instance", "importJob", core.NewJobParameters())
	se := core.NewStepExecution("importStep", je)
	se.MarkAsStarted()

	l.BeforeStep(ctx, se)
	l.BeforeChunk(ctx, se)
	se.ReadCount, se.WriteCount = 2, 2
	l.AfterChunk(ctx, se)

	l.BeforeChunk(ctx, se)
	se.ReadCount, se.WriteCount, se.FilterCount = 3, 2, 1
	l.AfterChunk(ctx, se)

	l.BeforeChunk(ctx, se)
	l.AfterChunkError(ctx, se, assert.AnError)

	se.MarkAsCompleted()
	l.AfterStep(ctx, se)

	assert.Equal(t, 3.0, testutil.ToFloat64(l.items.WithLabelValues("importJob", "importStep", "read")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.items.WithLabelValues("importJob", "importStep", "written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.items.WithLabelValues("importJob", "importStep", "filtered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.chunks.WithLabelValues("importJob", "importStep", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.chunks.WithLabelValues("importJob", "importStep", "rolled_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.steps.WithLabelValues("importJob", "importStep", string(core.BatchStatusCompleted))))
	assert.Equal(t, 1, testutil.CollectAndCount(l.stepDuration))
}

func TestNewMetricsListener_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetricsListener(reg)
	require.NoError(t, err)
	_, err = NewMetricsListener(reg)
	assert.Error(t, err)
}

func TestPush(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	_, err := NewMetricsListener(reg)
	require.NoError(t, err)

	require.NoError(t, Push(context.Background(), srv.URL, "importJob", reg))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/importJob", gotPath)

	assert.Error(t, Push(context.Background(), "", "importJob", reg))
}
