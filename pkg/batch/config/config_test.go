package config_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()
	job := cfg.Batch.Job

	assert.Equal(t, 10, job.ChunkSize)
	assert.Equal(t, ",", job.FileReader.Delimiter)
	assert.Equal(t, `"`, job.FileReader.QuoteCharacter)
	assert.True(t, job.FileReader.Strict)
	assert.True(t, job.FileReader.ParsingStrict)
	assert.True(t, job.FileReader.SaveState)
	assert.Equal(t, "UTF-8", job.FileReader.Encoding)
	assert.Equal(t, math.MaxInt, job.FileReader.MaxItemCount)
	assert.Equal(t, ",", job.FileWriter.Delimiter)
	assert.True(t, job.JdbcWriter.AssertUpdates)
}

func TestResolve_RelaxedKeys(t *testing.T) {
	cfg, err := config.Resolve(map[string]string{
		"batch.job.name":                      "job",
		"batch.job.chunkSize":                 "2",
		"batch.job.filereader.name":           "fooReader",
		"batch.job.filereader.names":          "foo, bar",
		"batch.job.filereader.included_fields": "0,2",
		"BATCH_JOB_FILEREADER_PARSING_STRICT": "false",
		"batch.job.jdbcwriter.assert-updates": "false",
		"batch.job.unknown":                   "ignored",
	})
	require.NoError(t, err)

	job := cfg.Batch.Job
	assert.Equal(t, "job", job.Name)
	assert.Equal(t, 2, job.ChunkSize)
	assert.Equal(t, "fooReader", job.FileReader.Name)
	assert.Equal(t, []string{"foo", "bar"}, job.FileReader.Names)
	assert.Equal(t, []int{0, 2}, job.FileReader.IncludedFields)
	assert.False(t, job.FileReader.ParsingStrict)
	assert.False(t, job.JdbcWriter.AssertUpdates)
	assert.True(t, job.FileReader.Strict)
}

func TestResolve_InvalidValueIsConfigurationError(t *testing.T) {
	_, err := config.Resolve(map[string]string{"batch.job.chunk-size": "many"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrConfiguration))
}

func TestBytesConfigLoader_YAMLKeepsDefaultsAndAppliesEnv(t *testing.T) {
	yamlData := []byte(`
database:
  type: sqlite
  database: ":memory:"
batch:
  job:
    name: importJob
    filereader:
      name: fooReader
      resource: /tmp/in.csv
      names: [foo, bar]
system:
  logging:
    level: DEBUG
`)
	cfg, err := config.NewBytesConfigLoader(yamlData).
		WithEnviron(func() []string {
			return []string{"BATCH_JOB_CHUNK_SIZE=5", "DATABASE_PORT=abc", "UNRELATED=1"}
		}).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "importJob", cfg.Batch.Job.Name)
	assert.Equal(t, 5, cfg.Batch.Job.ChunkSize)
	assert.Equal(t, []string{"foo", "bar"}, cfg.Batch.Job.FileReader.Names)
	assert.True(t, cfg.Batch.Job.FileReader.Strict)
	assert.Equal(t, 0, cfg.Database.Port)
	assert.Equal(t, "DEBUG", cfg.System.Logging.Level)
	assert.Equal(t, "sqlite", cfg.DataSource().Type)
}

func TestFileConfigLoader_MissingFile(t *testing.T) {
	_, err := config.NewFileConfigLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.True(t, errors.Is(err, exception.ErrResourceAccess))
}

func TestFileConfigLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  job:\n    name: fileJob\n"), 0o644))

	cfg, err := config.NewFileConfigLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "fileJob", cfg.Batch.Job.Name)
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{"postgres", config.DatabaseConfig{Type: "postgres", Host: "db", Port: 5432, Database: "batch", User: "u", Password: "p@ss"},
			"postgres://u:p%40ss@db:5432/batch?sslmode=disable"},
		{"mysql", config.DatabaseConfig{Type: "mysql", Host: "db", Port: 3306, Database: "batch", User: "u", Password: "p"},
			"u:p@tcp(db:3306)/batch?parseTime=true"},
		{"sqlite", config.DatabaseConfig{Type: "sqlite", Database: "/tmp/batch.db"}, "/tmp/batch.db"},
		{"sqlserver", config.DatabaseConfig{Type: "sqlserver", Host: "db", Port: 1433, Database: "batch", User: "sa", Password: "p"},
			"sqlserver://sa:p@db:1433?database=batch"},
		{"explicit dsn", config.DatabaseConfig{Type: "postgres", DSN: "postgres://x"}, "postgres://x"},
		{"unknown", config.DatabaseConfig{Type: "oracle"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ConnectionString())
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, config.NormalizeKey("batch.job.chunk-size"), config.NormalizeKey("BATCH_JOB_CHUNK_SIZE"))
	assert.Equal(t, config.NormalizeKey("batch.job.chunk-size"), config.NormalizeKey("batch.job.chunkSize"))
	assert.Contains(t, config.KnownKeys(), "batch.job.jdbcwriter.sql")
}
