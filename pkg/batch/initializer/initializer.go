package initializer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tigerroll/autobatch/pkg/batch/autoconfigure"
	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	"github.com/tigerroll/autobatch/pkg/batch/database/connector"
	"github.com/tigerroll/autobatch/pkg/batch/job/joblauncher"
	repository "github.com/tigerroll/autobatch/pkg/batch/repository"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "initializer"

// BatchInitializer はバッチアプリケーションの初期化処理を担当します。
// Initialize の後は Close でリソースを解放してください。
type BatchInitializer struct {
	Config        *config.Config
	Registry      *autoconfigure.Registry
	JobRepository repository.JobRepository
	DataSource    database.DBConnection
	Metrics       *prometheus.Registry
	Assembly      *autoconfigure.Assembly
	JobLauncher   *joblauncher.SimpleJobLauncher

	// ConnectRetries はデータソースへの接続の最大試行回数です。
	ConnectRetries int
	RetryDelay     time.Duration
}

// NewBatchInitializer は新しい BatchInitializer のインスタンスを作成します。
// reg が nil の場合は空のレジストリを使用します。
func NewBatchInitializer(cfg *config.Config, reg *autoconfigure.Registry) *BatchInitializer {
	if reg == nil {
		reg = autoconfigure.NewRegistry()
	}
	return &BatchInitializer{
		Config:         cfg,
		Registry:       reg,
		ConnectRetries: 3,
		RetryDelay:     2 * time.Second,
	}
}

// connectWithRetry はデータソースにリトライ付きで接続を試みます。
// 設定エラーはリトライしません。
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, delay time.Duration) (database.DBConnection, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		logger.Debugf("データソースへの接続を試行中 (試行 %d/%d)...", i+1, maxRetries)
		conn, _, err := connector.NewDBConnectionFromConfig(ctx, cfg)
		if err == nil {
			logger.Infof("データソース (%s) への接続に成功しました。", cfg.Type)
			return conn, nil
		}
		if errors.Is(err, exception.ErrConfiguration) {
			return nil, err
		}
		lastErr = err
		logger.Warnf("データソースへの接続に失敗しました: %v", err)
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, exception.NewResourceAccessError(module, fmt.Sprintf("データソースへの接続に最大試行回数 (%d) 失敗しました", maxRetries), lastErr)
}

// Initialize は JobRepository とデータソースを準備し、ジョブを組み立てて JobLauncher を返します。
// ジョブが組み立てられなかった場合も JobLauncher は返され、Assembly.Job は nil になります。
func (bi *BatchInitializer) Initialize(ctx context.Context) (*joblauncher.SimpleJobLauncher, error) {
	if bi.Config == nil {
		return nil, exception.NewConfigurationError(module, "設定がありません", nil)
	}
	cfg := bi.Config

	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Infof("ロギングレベルを '%s' に設定しました。", cfg.System.Logging.Level)

	jobRepository, err := repository.NewJobRepository(ctx, cfg.Database)
	if err != nil {
		return nil, exception.NewBatchError(module, "Job Repository の生成に失敗しました", err)
	}
	bi.JobRepository = jobRepository

	dsType := ""
	if cfg.Batch.Job.JdbcWriter.SQL != "" {
		dsCfg := cfg.DataSource()
		if !dsCfg.IsConfigured() {
			bi.Close()
			return nil, exception.NewConfigurationError(module, "jdbcwriter.sql が設定されていますが、datasource と database のどちらも設定されていません", nil)
		}
		conn, err := connectWithRetry(ctx, dsCfg, bi.ConnectRetries, bi.RetryDelay)
		if err != nil {
			bi.Close()
			return nil, err
		}
		bi.DataSource = conn
		dsType = dsCfg.Type
	}

	bi.Metrics = prometheus.NewRegistry()
	asm, err := autoconfigure.Assemble(ctx, cfg, bi.Registry, autoconfigure.Dependencies{
		JobRepository:  jobRepository,
		DataSource:     bi.DataSource,
		DataSourceType: dsType,
		Metrics:        bi.Metrics,
	})
	if err != nil {
		bi.Close()
		return nil, err
	}
	bi.Assembly = asm

	bi.JobLauncher = joblauncher.NewSimpleJobLauncher(jobRepository)
	logger.Infof("バッチアプリケーションの初期化が完了しました。")
	return bi.JobLauncher, nil
}

// Close は BatchInitializer が保持するリソースを解放します。
func (bi *BatchInitializer) Close() error {
	var errs []error
	if bi.DataSource != nil {
		if err := bi.DataSource.Close(); err != nil {
			logger.Errorf("データソースのクローズに失敗しました: %v", err)
			errs = append(errs, fmt.Errorf("データソースのクローズエラー: %w", err))
		}
		bi.DataSource = nil
	}
	if bi.JobRepository != nil {
		if err := bi.JobRepository.Close(); err != nil {
			logger.Errorf("Job Repository のクローズに失敗しました: %v", err)
			errs = append(errs, fmt.Errorf("Job Repository のクローズエラー: %w", err))
		}
		bi.JobRepository = nil
	}
	return errors.Join(errs...)
}
