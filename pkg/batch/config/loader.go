package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

// ConfigLoader は Config を読み込むためのインターフェースです。
type ConfigLoader interface {
	Load() (*Config, error)
}

// BytesConfigLoader はバイトスライスから設定をロードする ConfigLoader の実装です。
type BytesConfigLoader struct {
	data    []byte
	environ func() []string
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data, environ: os.Environ}
}

// WithEnviron は環境変数の取得元を差し替えます。
func (l *BytesConfigLoader) WithEnviron(environ func() []string) *BytesConfigLoader {
	l.environ = environ
	return l
}

// Load は YAML をデフォルト値の上にパースし、環境変数で個別の設定値を上書きします。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(l.data, cfg); err != nil {
		return nil, exception.NewConfigurationError("config", "YAML設定のパースに失敗しました", err)
	}
	if l.environ != nil {
		cfg.applyEnv(l.environ())
	}
	return cfg, nil
}

// FileConfigLoader はファイルから設定をロードする ConfigLoader の実装です。
type FileConfigLoader struct {
	path string
}

// NewFileConfigLoader は新しい FileConfigLoader のインスタンスを作成します。
func NewFileConfigLoader(path string) *FileConfigLoader {
	return &FileConfigLoader{path: path}
}

// Load は設定ファイルを読み込みます。
func (l *FileConfigLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, exception.NewResourceAccessError("config", "設定ファイルの読み込みに失敗しました: "+l.path, err)
	}
	return NewBytesConfigLoader(data).Load()
}

var (
	_ ConfigLoader = (*BytesConfigLoader)(nil)
	_ ConfigLoader = (*FileConfigLoader)(nil)
)
