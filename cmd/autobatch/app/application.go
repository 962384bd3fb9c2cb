package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	godotenv "github.com/joho/godotenv"

	"github.com/tigerroll/autobatch/pkg/batch/autoconfigure"
	config "github.com/tigerroll/autobatch/pkg/batch/config"
	initializer "github.com/tigerroll/autobatch/pkg/batch/initializer"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/step/listener"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// Options はコマンドラインから渡される起動オプションです。
type Options struct {
	ConfigPath  string
	EnvFilePath string
	// Overrides は "key=value" 形式のプロパティで、設定ファイルより優先されます。
	Overrides []string
	// Registry はアプリケーションが事前に登録したコンポーネントです。nil の場合は空のレジストリを使用します。
	Registry *autoconfigure.Registry
}

// ParseOverrides は "key=value" 形式の文字列をプロパティのマップに変換します。
func ParseOverrides(overrides []string) (map[string]string, error) {
	props := make(map[string]string, len(overrides))
	for _, o := range overrides {
		key, value, ok := strings.Cut(o, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, exception.NewConfigurationError("app", fmt.Sprintf("プロパティの形式が不正です (key=value): '%s'", o), nil)
		}
		props[key] = value
	}
	return props, nil
}

// loadConfig は .env、設定ファイル、上書きプロパティの順に設定を読み込みます。
func loadConfig(opts Options) (*config.Config, error) {
	if opts.EnvFilePath != "" {
		if err := godotenv.Load(opts.EnvFilePath); err != nil {
			logger.Warnf(".env ファイル '%s' のロードに失敗しました (環境変数を使用します): %v", opts.EnvFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", opts.EnvFilePath)
		}
	}

	var loader config.ConfigLoader = config.NewBytesConfigLoader(nil)
	if opts.ConfigPath != "" {
		loader = config.NewFileConfigLoader(opts.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	props, err := ParseOverrides(opts.Overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(props); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RunApplication はジョブを組み立てて実行し、終了コードを返します。
func RunApplication(ctx context.Context, opts Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		logger.Errorf("設定のロードに失敗しました: %v", err)
		return 1
	}

	batchInitializer := initializer.NewBatchInitializer(cfg, opts.Registry)
	jobLauncher, err := batchInitializer.Initialize(ctx)
	if err != nil {
		return handleApplicationError(err, nil, cfg.Batch.Job.Name)
	}
	defer func() {
		if closeErr := batchInitializer.Close(); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		}
	}()

	job := batchInitializer.Assembly.Job
	if job == nil {
		logger.Infof("ジョブが構成されていないため、何も実行せずに終了します。")
		return 0
	}

	logger.Infof("実行する Job: '%s'", job.JobName())
	jobExecution, launchErr := jobLauncher.Launch(ctx, job, core.NewJobParameters())

	if url := cfg.System.Metrics.PushgatewayURL; url != "" {
		if pushErr := listener.Push(context.WithoutCancel(ctx), url, job.JobName(), batchInitializer.Metrics); pushErr != nil {
			logger.Warnf("メトリクスの送信に失敗しました: %v", pushErr)
		}
	}

	return handleApplicationError(launchErr, jobExecution, job.JobName())
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		if jobExecution != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) の実行中にエラーが発生しました: %v", jobName, jobExecution.ID, err)
		} else {
			logger.Errorf("Job '%s' の起動処理中にエラーが発生しました: %v", jobName, err)
		}

		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Kind=%s, Message=%s, OriginalErr=%v", be.Module, be.Kind, be.Message, be.OriginalErr)
			if be.StackTrace != "" {
				logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
			}
		}
	}

	if jobExecution != nil {
		logger.Infof("Job '%s' (Execution ID: %s) の最終状態: %s, ExitStatus: %s",
			jobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
		switch jobExecution.Status {
		case core.BatchStatusFailed, core.BatchStatusAbandoned, core.BatchStatusStopped:
			hasError = true
		}
		for i, f := range jobExecution.Failures {
			logger.Errorf("  - 失敗 %d: %v", i+1, f)
		}
	}

	if hasError {
		return 1
	}
	return 0
}
