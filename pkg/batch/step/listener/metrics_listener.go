package listener

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
)

// MetricsListener はステップとチャンクの進捗を Prometheus のメトリクスとして記録します。
// ラベルは job と step です。
type MetricsListener struct {
	items        *prometheus.CounterVec // autobatch_items_total{job,step,kind}
	chunks       *prometheus.CounterVec // autobatch_chunks_total{job,step,outcome}
	steps        *prometheus.CounterVec // autobatch_steps_total{job,step,status}
	stepDuration *prometheus.HistogramVec

	mu   sync.Mutex
	last map[string]core.ExecutionResult // StepExecution ID ごとの前回値
}

// NewMetricsListener はメトリクスを reg に登録した MetricsListener を作成します。
func NewMetricsListener(reg prometheus.Registerer) (*MetricsListener, error) {
	l := &MetricsListener{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobatch_items_total",
			Help: "Number of items per kind (read, written, filtered).",
		}, []string{"job", "step", "kind"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobatch_chunks_total",
			Help: "Number of chunks per outcome (committed, rolled_back).",
		}, []string{"job", "step", "outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autobatch_steps_total",
			Help: "Number of finished step executions per status.",
		}, []string{"job", "step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autobatch_step_duration_seconds",
			Help:    "Duration of step executions in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"job", "step", "status"}),
		last: make(map[string]core.ExecutionResult),
	}

	for _, c := range []prometheus.Collector{l.items, l.chunks, l.steps, l.stepDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: コレクターを登録できません: %w", err)
		}
	}
	return l, nil
}

func labels(se *core.StepExecution) (string, string) {
	job := ""
	if se.JobExecution != nil {
		job = se.JobExecution.JobName
	}
	return job, se.StepName
}

// BeforeStep は StepExecutionListener の実装です。
func (l *MetricsListener) BeforeStep(ctx context.Context, stepExecution *core.StepExecution) {
	l.mu.Lock()
	l.last[stepExecution.ID] = stepExecution.Result()
	l.mu.Unlock()
}

// AfterStep はステップの件数、状態、所要時間を記録します。
func (l *MetricsListener) AfterStep(ctx context.Context, stepExecution *core.StepExecution) {
	l.recordItems(stepExecution)
	job, step := labels(stepExecution)
	status := string(stepExecution.Status)
	l.steps.WithLabelValues(job, step, status).Inc()
	if !stepExecution.StartTime.IsZero() {
		end := stepExecution.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		l.stepDuration.WithLabelValues(job, step, status).Observe(end.Sub(stepExecution.StartTime).Seconds())
	}

	l.mu.Lock()
	delete(l.last, stepExecution.ID)
	l.mu.Unlock()
}

// BeforeChunk は ChunkListener の実装です。
func (l *MetricsListener) BeforeChunk(ctx context.Context, stepExecution *core.StepExecution) {}

// AfterChunk はコミットされたチャンクの件数を記録します。
func (l *MetricsListener) AfterChunk(ctx context.Context, stepExecution *core.StepExecution) {
	job, step := labels(stepExecution)
	l.chunks.WithLabelValues(job, step, "committed").Inc()
	l.recordItems(stepExecution)
}

// AfterChunkError はロールバックされたチャンクを記録します。
func (l *MetricsListener) AfterChunkError(ctx context.Context, stepExecution *core.StepExecution, err error) {
	job, step := labels(stepExecution)
	l.chunks.WithLabelValues(job, step, "rolled_back").Inc()
}

// recordItems は前回記録時からの件数の増分をカウンターに加算します。
func (l *MetricsListener) recordItems(se *core.StepExecution) {
	current := se.Result()

	l.mu.Lock()
	prev := l.last[se.ID]
	l.last[se.ID] = current
	l.mu.Unlock()

	job, step := labels(se)
	if d := current.ReadCount - prev.ReadCount; d > 0 {
		l.items.WithLabelValues(job, step, "read").Add(float64(d))
	}
	if d := current.WriteCount - prev.WriteCount; d > 0 {
		l.items.WithLabelValues(job, step, "written").Add(float64(d))
	}
	if d := current.FilterCount - prev.FilterCount; d > 0 {
		l.items.WithLabelValues(job, step, "filtered").Add(float64(d))
	}
}

// Push は gatherer の内容を Pushgateway に送信します。jobName は Pushgateway のグループ名です。
func Push(ctx context.Context, gatewayURL, jobName string, gatherer prometheus.Gatherer) error {
	if gatewayURL == "" {
		return fmt.Errorf("metrics: Pushgateway の URL が設定されていません")
	}
	if jobName == "" {
		jobName = "autobatch"
	}
	return push.New(gatewayURL, jobName).Gatherer(gatherer).PushContext(ctx)
}

var (
	_ core.StepExecutionListener = (*MetricsListener)(nil)
	_ core.ChunkListener         = (*MetricsListener)(nil)
)
