package autoconfigure

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/job/incrementer"
	"github.com/tigerroll/autobatch/pkg/batch/job/runner"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/repository"
	"github.com/tigerroll/autobatch/pkg/batch/step"
	"github.com/tigerroll/autobatch/pkg/batch/step/listener"
	"github.com/tigerroll/autobatch/pkg/batch/step/processor"
	"github.com/tigerroll/autobatch/pkg/batch/step/reader"
	"github.com/tigerroll/autobatch/pkg/batch/step/writer"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "autoconfigure"

// RecordReader は Record を読み込む ItemReader です。
type RecordReader = core.ItemReader[*record.Record]

// RecordWriter は Record を書き込む ItemWriter です。
type RecordWriter = core.ItemWriter[*record.Record]

// Dependencies は組み立てに必要な外部の協調オブジェクトです。
type Dependencies struct {
	// JobRepository はチェックポイントの保存先です。nil の場合はメモリ上のリポジトリを使用します。
	JobRepository repository.JobRepository
	// DataSource は SQL ライターの書き込み先です。
	DataSource database.DBConnection
	// DataSourceType は DataSource のデータベース種別 (バインド形式の決定に使用) です。
	DataSourceType string
	// Metrics が設定されている場合、MetricsListener を登録します。
	Metrics prometheus.Registerer
	// Listeners はステップまたはジョブに追加登録するリスナーです。
	Listeners []any
}

// Assembly は組み立ての結果です。設定が不足しているコンポーネントは nil です。
type Assembly struct {
	Reader      RecordReader
	Writer      RecordWriter
	Transformer *processor.Stage
	Step        core.Step
	Job         core.Job
	Metrics     *listener.MetricsListener
	// Built は今回の呼び出しで新たに作成され、レジストリに登録されたコンポーネント名です。
	Built []string
}

// Assemble は設定とレジストリの内容からジョブを組み立てます。
// エラーの場合はレジストリに何も登録されません。既に組み立て済みのコンポーネントは再利用されます。
func Assemble(ctx context.Context, cfg *config.Config, reg *Registry, deps Dependencies) (*Assembly, error) {
	if cfg == nil {
		return nil, exception.NewConfigurationError(module, "設定がありません", nil)
	}
	if reg == nil {
		return nil, exception.NewConfigurationError(module, "レジストリがありません", nil)
	}
	jobCfg := cfg.Batch.Job
	asm := &Assembly{}
	built := make(map[string]any)

	// Reader
	if v, ok := reg.Lookup(BeanItemReader); ok {
		r, isReader := v.(RecordReader)
		if !isReader {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' は ItemReader ではありません: %T", BeanItemReader, v), nil)
		}
		asm.Reader = r
	} else if jobCfg.FileReader.Name != "" {
		r, err := reader.NewFlatFileItemReader(jobCfg.FileReader)
		if err != nil {
			return nil, err
		}
		asm.Reader = r
		built[BeanItemReader] = r
	}

	// Writer
	if v, ok := reg.Lookup(BeanItemWriter); ok {
		w, isWriter := v.(RecordWriter)
		if !isWriter {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' は ItemWriter ではありません: %T", BeanItemWriter, v), nil)
		}
		asm.Writer = w
	} else {
		w, err := buildWriter(cfg, asm.Reader, deps)
		if err != nil {
			return nil, err
		}
		if w != nil {
			asm.Writer = w
			built[BeanItemWriter] = w
		}
	}

	// Transformer
	stage, err := buildStage(jobCfg.ItemProcessor, reg)
	if err != nil {
		return nil, err
	}
	asm.Transformer = stage

	if asm.Reader == nil || asm.Writer == nil {
		logger.Infof("ItemReader または ItemWriter が構成されていないため、ステップとジョブは作成しません。")
		return asm.register(reg, built)
	}

	if v, ok := reg.Lookup(BeanJob); ok {
		job, isJob := v.(core.Job)
		if !isJob {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' は Job ではありません: %T", BeanJob, v), nil)
		}
		asm.Job = job
		if s, ok := reg.Lookup(BeanStep); ok {
			asm.Step, _ = s.(core.Step)
		}
		return asm.register(reg, built)
	}

	if jobCfg.Name == "" {
		return nil, exception.NewConfigurationError(module, "batch.job.name が設定されていません", nil)
	}
	repo := deps.JobRepository
	if repo == nil {
		repo = repository.NewMemoryJobRepository()
	}

	if v, ok := reg.Lookup(BeanStep); ok {
		s, isStep := v.(core.Step)
		if !isStep {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' は Step ではありません: %T", BeanStep, v), nil)
		}
		asm.Step = s
	} else {
		s, metrics, err := buildStep(cfg, asm, repo, deps)
		if err != nil {
			return nil, err
		}
		asm.Step = s
		asm.Metrics = metrics
		built[BeanStep] = s
	}

	job, err := buildJob(jobCfg, asm.Step, repo, deps)
	if err != nil {
		return nil, err
	}
	asm.Job = job
	built[BeanJob] = job

	return asm.register(reg, built)
}

// buildWriter はファイルライターまたは SQL ライターを作成します。どちらも設定されていない場合は nil です。
func buildWriter(cfg *config.Config, r RecordReader, deps Dependencies) (RecordWriter, error) {
	jobCfg := cfg.Batch.Job
	flat := jobCfg.FileWriter.Name != ""
	jdbc := jobCfg.JdbcWriter.SQL != ""

	switch {
	case flat && jdbc:
		return nil, exception.NewConfigurationError(module, "filewriter と jdbcwriter の両方が設定されています", nil)
	case flat:
		w, err := writer.NewFlatFileItemWriter(jobCfg.FileWriter)
		if err != nil {
			return nil, err
		}
		return w, nil
	case jdbc:
		if deps.DataSource == nil {
			return nil, exception.NewConfigurationError(module, "jdbcwriter.sql が設定されていますが、データソースがありません", nil)
		}
		var defaultNames []string
		if named, ok := r.(interface{ Names() []string }); ok {
			defaultNames = named.Names()
		}
		dbType := deps.DataSourceType
		if dbType == "" {
			dbType = cfg.DataSource().Type
		}
		w, err := writer.NewJdbcBatchItemWriter(jobCfg.JdbcWriter, deps.DataSource, dbType, defaultNames)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, nil
	}
}

// buildStage は batch.job.itemprocessor が指すレジストリのエントリから変換ステージを決定します。
func buildStage(name string, reg *Registry) (*processor.Stage, error) {
	if name == "" {
		return processor.None(), nil
	}
	v, ok := reg.Lookup(name)
	if !ok {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("アイテムプロセッサ '%s' がレジストリに見つかりません", name), nil)
	}
	t, err := processor.Resolve(v)
	if err != nil {
		return nil, err
	}
	return processor.Transform(t), nil
}

func buildStep(cfg *config.Config, asm *Assembly, repo repository.JobRepository, deps Dependencies) (core.Step, *listener.MetricsListener, error) {
	jobCfg := cfg.Batch.Job
	stepName := jobCfg.StepName
	if stepName == "" {
		stepName = jobCfg.Name + ".step"
	}

	s, err := step.NewChunkStep[*record.Record, *record.Record](stepName, asm.Reader, asm.Transformer, asm.Writer, jobCfg.ChunkSize, repo)
	if err != nil {
		return nil, nil, err
	}
	if _, isJdbc := asm.Writer.(*writer.JdbcBatchItemWriter); isJdbc && deps.DataSource != nil {
		s.SetTransactionManager(deps.DataSource)
	}

	s.RegisterListener(listener.NewLoggingStepListener())
	s.RegisterListener(listener.NewLoggingChunkListener())
	s.RegisterListener(listener.NewLoggingItemListener())

	var metrics *listener.MetricsListener
	if deps.Metrics != nil {
		metrics, err = listener.NewMetricsListener(deps.Metrics)
		if err != nil {
			return nil, nil, exception.NewConfigurationError(module, "MetricsListener を登録できません", err)
		}
		s.RegisterListener(metrics)
	}
	for _, l := range deps.Listeners {
		s.RegisterListener(l)
	}
	return s, metrics, nil
}

func buildJob(jobCfg config.JobConfig, s core.Step, repo repository.JobRepository, deps Dependencies) (core.Job, error) {
	job, err := runner.NewSimpleJob(jobCfg.Name, s, repo)
	if err != nil {
		return nil, err
	}
	inc, err := incrementer.New(jobCfg.Incrementer)
	if err != nil {
		return nil, err
	}
	job.SetIncrementer(inc)

	job.RegisterListener(listener.NewLoggingJobListener())
	for _, l := range deps.Listeners {
		if jl, ok := l.(core.JobExecutionListener); ok {
			job.RegisterListener(jl)
		}
	}
	return job, nil
}

func (asm *Assembly) register(reg *Registry, built map[string]any) (*Assembly, error) {
	if err := reg.registerAll(built); err != nil {
		return nil, exception.NewConfigurationError(module, "コンポーネントを登録できません", err)
	}
	for _, name := range []string{BeanItemReader, BeanItemWriter, BeanStep, BeanJob} {
		if _, ok := built[name]; ok {
			asm.Built = append(asm.Built, name)
		}
	}
	if len(asm.Built) > 0 {
		logger.Infof("コンポーネントを作成しました: %v", asm.Built)
	}
	return asm, nil
}
