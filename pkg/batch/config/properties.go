package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	"github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// binding はプロパティキーと Config のフィールドの対応です。
type binding struct {
	key   string
	field func(c *Config) any
}

func databaseBindings(prefix string, sel func(c *Config) *DatabaseConfig) []binding {
	return []binding{
		{prefix + ".type", func(c *Config) any { return &sel(c).Type }},
		{prefix + ".dsn", func(c *Config) any { return &sel(c).DSN }},
		{prefix + ".host", func(c *Config) any { return &sel(c).Host }},
		{prefix + ".port", func(c *Config) any { return &sel(c).Port }},
		{prefix + ".database", func(c *Config) any { return &sel(c).Database }},
		{prefix + ".user", func(c *Config) any { return &sel(c).User }},
		{prefix + ".password", func(c *Config) any { return &sel(c).Password }},
		{prefix + ".sslmode", func(c *Config) any { return &sel(c).Sslmode }},
		{prefix + ".account", func(c *Config) any { return &sel(c).Account }},
		{prefix + ".warehouse", func(c *Config) any { return &sel(c).Warehouse }},
		{prefix + ".schema", func(c *Config) any { return &sel(c).Schema }},
		{prefix + ".role", func(c *Config) any { return &sel(c).Role }},
		{prefix + ".migrations-table", func(c *Config) any { return &sel(c).MigrationsTable }},
		{prefix + ".connection-pool.max-open-conns", func(c *Config) any { return &sel(c).ConnectionPool.MaxOpenConns }},
		{prefix + ".connection-pool.max-idle-conns", func(c *Config) any { return &sel(c).ConnectionPool.MaxIdleConns }},
		{prefix + ".connection-pool.conn-max-lifetime-seconds", func(c *Config) any { return &sel(c).ConnectionPool.ConnMaxLifetimeSeconds }},
	}
}

func reader(c *Config) *FileReaderConfig { return &c.Batch.Job.FileReader }
func writer(c *Config) *FileWriterConfig { return &c.Batch.Job.FileWriter }

var bindings = func() []binding {
	b := []binding{
		{"batch.job.name", func(c *Config) any { return &c.Batch.Job.Name }},
		{"batch.job.step-name", func(c *Config) any { return &c.Batch.Job.StepName }},
		{"batch.job.chunk-size", func(c *Config) any { return &c.Batch.Job.ChunkSize }},
		{"batch.job.itemprocessor", func(c *Config) any { return &c.Batch.Job.ItemProcessor }},
		{"batch.job.incrementer", func(c *Config) any { return &c.Batch.Job.Incrementer }},

		{"batch.job.filereader.resource", func(c *Config) any { return &reader(c).Resource }},
		{"batch.job.filereader.name", func(c *Config) any { return &reader(c).Name }},
		{"batch.job.filereader.names", func(c *Config) any { return &reader(c).Names }},
		{"batch.job.filereader.delimited", func(c *Config) any { return &reader(c).Delimited }},
		{"batch.job.filereader.fixed-length", func(c *Config) any { return &reader(c).FixedLength }},
		{"batch.job.filereader.delimiter", func(c *Config) any { return &reader(c).Delimiter }},
		{"batch.job.filereader.quote-character", func(c *Config) any { return &reader(c).QuoteCharacter }},
		{"batch.job.filereader.included-fields", func(c *Config) any { return &reader(c).IncludedFields }},
		{"batch.job.filereader.ranges", func(c *Config) any { return &reader(c).Ranges }},
		{"batch.job.filereader.strict", func(c *Config) any { return &reader(c).Strict }},
		{"batch.job.filereader.parsing-strict", func(c *Config) any { return &reader(c).ParsingStrict }},
		{"batch.job.filereader.encoding", func(c *Config) any { return &reader(c).Encoding }},
		{"batch.job.filereader.lines-to-skip", func(c *Config) any { return &reader(c).LinesToSkip }},
		{"batch.job.filereader.save-state", func(c *Config) any { return &reader(c).SaveState }},
		{"batch.job.filereader.max-item-count", func(c *Config) any { return &reader(c).MaxItemCount }},
		{"batch.job.filereader.current-item-count", func(c *Config) any { return &reader(c).CurrentItemCount }},
		{"batch.job.filereader.comments", func(c *Config) any { return &reader(c).Comments }},

		{"batch.job.filewriter.resource", func(c *Config) any { return &writer(c).Resource }},
		{"batch.job.filewriter.name", func(c *Config) any { return &writer(c).Name }},
		{"batch.job.filewriter.names", func(c *Config) any { return &writer(c).Names }},
		{"batch.job.filewriter.delimiter", func(c *Config) any { return &writer(c).Delimiter }},
		{"batch.job.filewriter.append", func(c *Config) any { return &writer(c).Append }},
		{"batch.job.filewriter.encoding", func(c *Config) any { return &writer(c).Encoding }},
		{"batch.job.filewriter.line-separator", func(c *Config) any { return &writer(c).LineSeparator }},
		{"batch.job.filewriter.save-state", func(c *Config) any { return &writer(c).SaveState }},

		{"batch.job.jdbcwriter.sql", func(c *Config) any { return &c.Batch.Job.JdbcWriter.SQL }},
		{"batch.job.jdbcwriter.names", func(c *Config) any { return &c.Batch.Job.JdbcWriter.Names }},
		{"batch.job.jdbcwriter.assert-updates", func(c *Config) any { return &c.Batch.Job.JdbcWriter.AssertUpdates }},

		{"system.timezone", func(c *Config) any { return &c.System.Timezone }},
		{"system.logging.level", func(c *Config) any { return &c.System.Logging.Level }},
		{"system.metrics.pushgateway-url", func(c *Config) any { return &c.System.Metrics.PushgatewayURL }},
	}
	b = append(b, databaseBindings("database", func(c *Config) *DatabaseConfig { return &c.Database })...)
	b = append(b, databaseBindings("datasource", func(c *Config) *DatabaseConfig { return &c.Datasource })...)
	return b
}()

// bindingIndex は正規化したキーから binding への索引です。
var bindingIndex = func() map[string]binding {
	idx := make(map[string]binding, len(bindings))
	for _, b := range bindings {
		idx[NormalizeKey(b.key)] = b
	}
	return idx
}()

// NormalizeKey はプロパティキーを比較用の形に正規化します。
// 大文字小文字を区別せず、'.', '-', '_' を無視します。
// "batch.job.chunk-size", "batch.job.chunkSize", "BATCH_JOB_CHUNK_SIZE" は同じキーになります。
func NormalizeKey(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch r {
		case '.', '-', '_':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// KnownKeys はバインド可能なプロパティキーの一覧を返します。
func KnownKeys() []string {
	keys := make([]string, 0, len(bindings))
	for _, b := range bindings {
		keys = append(keys, b.key)
	}
	sort.Strings(keys)
	return keys
}

// Resolve はデフォルト値にフラットなプロパティを適用した Config を返します。
func Resolve(props map[string]string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.Apply(props); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply はフラットなプロパティを Config に適用します。
// 未知のキーは無視し、値の変換に失敗した場合は ConfigurationError を返します。
func (c *Config) Apply(props map[string]string) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		b, ok := bindingIndex[NormalizeKey(k)]
		if !ok {
			logger.Debugf("未知のプロパティ '%s' を無視します。", k)
			continue
		}
		if err := assign(b.field(c), props[k]); err != nil {
			return exception.NewConfigurationError("config",
				fmt.Sprintf("プロパティ '%s' の値 '%s' を変換できません", k, props[k]), err)
		}
	}
	return nil
}

// applyEnv は環境変数 (KEY=VALUE 形式) のうち既知のキーに一致するものを適用します。
// 変換に失敗した値は警告を出して無視します。
func (c *Config) applyEnv(environ []string) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" {
			continue
		}
		b, ok := bindingIndex[NormalizeKey(k)]
		if !ok {
			continue
		}
		if err := assign(b.field(c), v); err != nil {
			logger.Warnf("環境変数 %s の値 '%s' が無効です。設定ファイルの値を使用します。", k, v)
		}
	}
}

func assign(field any, raw string) error {
	switch p := field.(type) {
	case *string:
		*p = raw
	case *int:
		v, err := cast.ToIntE(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*p = v
	case *bool:
		v, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		*p = v
	case *[]string:
		*p = splitList(raw)
	case *[]int:
		parts := splitList(raw)
		out := make([]int, 0, len(parts))
		for _, s := range parts {
			v, err := cast.ToIntE(s)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		*p = out
	default:
		return fmt.Errorf("unsupported field type %T", field)
	}
	return nil
}

// splitList はカンマ区切りの値を分割します。空要素は除外します。
func splitList(raw string) []string {
	out := make([]string, 0)
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
