package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
)

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig はデータベース接続の設定です。
// ジョブリポジトリ用 (database) と SQL ライター用 (datasource) の両方で使用します。
type DatabaseConfig struct {
	Type      string `yaml:"type"` // postgres, redshift, pgx, mysql, sqlite, sqlserver, snowflake
	DSN       string `yaml:"dsn"`  // 指定された場合は他の接続項目より優先されます
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Database  string `yaml:"database"` // sqlite の場合はファイルパス
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Sslmode   string `yaml:"sslmode"`
	Account   string `yaml:"account"`   // snowflake
	Warehouse string `yaml:"warehouse"` // snowflake
	Schema    string `yaml:"schema"`    // snowflake
	Role      string `yaml:"role"`      // snowflake
	// MigrationsTable はジョブリポジトリのマイグレーション履歴テーブル名です。
	MigrationsTable string               `yaml:"migrations_table"`
	ConnectionPool  ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はドライバに渡す接続文字列を返します。
// snowflake は connector 側で DSN を組み立てるため、DSN 未指定時は空文字列を返します。
func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift", "pgx":
		sslmode := c.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=" + url.QueryEscape(sslmode),
		}
		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	case "sqlite":
		return c.Database
	case "sqlserver":
		q := url.Values{}
		q.Set("database", c.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			RawQuery: q.Encode(),
		}
		return u.String()
	default:
		return ""
	}
}

// IsConfigured はデータベース種別が設定されているかを返します。
func (c DatabaseConfig) IsConfigured() bool {
	return c.Type != ""
}

// FileReaderConfig はフラットファイルリーダーの設定です。
type FileReaderConfig struct {
	Resource         string   `yaml:"resource"`
	Name             string   `yaml:"name"`
	Names            []string `yaml:"names"`
	Delimited        bool     `yaml:"delimited"`
	FixedLength      bool     `yaml:"fixed_length"`
	Delimiter        string   `yaml:"delimiter"`
	QuoteCharacter   string   `yaml:"quote_character"`
	IncludedFields   []int    `yaml:"included_fields"`
	Ranges           []string `yaml:"ranges"`
	Strict           bool     `yaml:"strict"`
	ParsingStrict    bool     `yaml:"parsing_strict"`
	Encoding         string   `yaml:"encoding"`
	LinesToSkip      int      `yaml:"lines_to_skip"`
	SaveState        bool     `yaml:"save_state"`
	MaxItemCount     int      `yaml:"max_item_count"`
	CurrentItemCount int      `yaml:"current_item_count"`
	Comments         []string `yaml:"comments"`
}

// FileWriterConfig はフラットファイルライターの設定です。
type FileWriterConfig struct {
	Resource      string   `yaml:"resource"`
	Name          string   `yaml:"name"`
	Names         []string `yaml:"names"`
	Delimiter     string   `yaml:"delimiter"`
	Append        bool     `yaml:"append"`
	Encoding      string   `yaml:"encoding"`
	LineSeparator string   `yaml:"line_separator"`
	SaveState     bool     `yaml:"save_state"`
}

// JdbcWriterConfig はパラメータ化 SQL ライターの設定です。
type JdbcWriterConfig struct {
	SQL           string   `yaml:"sql"`
	Names         []string `yaml:"names"`
	AssertUpdates bool     `yaml:"assert_updates"`
}

// JobConfig は単一ステップジョブの設定です。
type JobConfig struct {
	Name          string           `yaml:"name"`
	StepName      string           `yaml:"step_name"`
	ChunkSize     int              `yaml:"chunk_size"`
	ItemProcessor string           `yaml:"item_processor"`
	Incrementer   string           `yaml:"incrementer"` // "run.id" または "timestamp"
	FileReader    FileReaderConfig `yaml:"filereader"`
	FileWriter    FileWriterConfig `yaml:"filewriter"`
	JdbcWriter    JdbcWriterConfig `yaml:"jdbcwriter"`
}

type BatchConfig struct {
	Job JobConfig `yaml:"job"`
}

// LoggingConfig はログ出力の設定です。
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig はメトリクスの設定です。PushgatewayURL が空の場合は送信しません。
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

type Config struct {
	Database   DatabaseConfig `yaml:"database"`
	Datasource DatabaseConfig `yaml:"datasource"`
	Batch      BatchConfig    `yaml:"batch"`
	System     SystemConfig   `yaml:"system"`
}

// NewConfig はデフォルト値を設定した Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Batch: BatchConfig{
			Job: JobConfig{
				ChunkSize: 10,
				FileReader: FileReaderConfig{
					Delimiter:      ",",
					QuoteCharacter: `"`,
					Strict:         true,
					ParsingStrict:  true,
					Encoding:       "UTF-8",
					SaveState:      true,
					MaxItemCount:   math.MaxInt,
				},
				FileWriter: FileWriterConfig{
					Delimiter:     ",",
					Encoding:      "UTF-8",
					LineSeparator: "\n",
					SaveState:     true,
				},
				JdbcWriter: JdbcWriterConfig{
					AssertUpdates: true,
				},
			},
		},
	}
}

// DataSource は SQL ライターが使用するデータソース設定を返します。
// datasource が未設定の場合は database の設定を使用します。
func (c *Config) DataSource() DatabaseConfig {
	if c.Datasource.IsConfigured() {
		return c.Datasource
	}
	return c.Database
}
