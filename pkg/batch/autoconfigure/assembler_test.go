package autoconfigure

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/job/joblauncher"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/repository"
	"github.com/tigerroll/autobatch/pkg/batch/step/processor"
	"github.com/tigerroll/autobatch/pkg/batch/step/reader"
	"github.com/tigerroll/autobatch/pkg/batch/step/writer"
	exception "github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

func resolve(t *testing.T, props map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.Resolve(props)
	require.NoError(t, err)
	return cfg
}

func inputFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func fileProps(input, output string) map[string]string {
	return map[string]string{
		"batch.job.name":                "job",
		"batch.job.chunk-size":          "2",
		"batch.job.filereader.name":     "fooReader",
		"batch.job.filereader.resource": input,
		"batch.job.filereader.names":    "a,b",
		"batch.job.filewriter.name":     "fooWriter",
		"batch.job.filewriter.resource": output,
		"batch.job.filewriter.names":    "a,b",
	}
}

func openSQLite(t *testing.T) (*sql.DB, database.DBConnection) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec("CREATE TABLE foo (first TEXT PRIMARY KEY, second TEXT)")
	require.NoError(t, err)
	return db, database.NewSQLDBAdapter(db)
}

func TestAssemble_PresenceRules(t *testing.T) {
	ctx := context.Background()
	input := inputFile(t, "1,2\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	t.Run("nothing configured", func(t *testing.T) {
		reg := NewRegistry()
		asm, err := Assemble(ctx, resolve(t, map[string]string{"batch.job.name": "job"}), reg, Dependencies{})
		require.NoError(t, err)
		assert.Nil(t, asm.Reader)
		assert.Nil(t, asm.Writer)
		assert.Nil(t, asm.Step)
		assert.Nil(t, asm.Job)
		assert.Empty(t, reg.Names())
	})

	t.Run("reader only", func(t *testing.T) {
		props := fileProps(input, output)
		delete(props, "batch.job.filewriter.name")
		reg := NewRegistry()
		asm, err := Assemble(ctx, resolve(t, props), reg, Dependencies{})
		require.NoError(t, err)
		assert.IsType(t, &reader.FlatFileItemReader{}, asm.Reader)
		assert.Nil(t, asm.Writer)
		assert.Nil(t, asm.Job)
		assert.Equal(t, []string{BeanItemReader}, asm.Built)
		assert.False(t, reg.Has(BeanJob))
	})

	t.Run("writer only", func(t *testing.T) {
		props := fileProps(input, output)
		delete(props, "batch.job.filereader.name")
		asm, err := Assemble(ctx, resolve(t, props), NewRegistry(), Dependencies{})
		require.NoError(t, err)
		assert.Nil(t, asm.Reader)
		assert.IsType(t, &writer.FlatFileItemWriter{}, asm.Writer)
		assert.Nil(t, asm.Step)
	})

	t.Run("reader and writer", func(t *testing.T) {
		reg := NewRegistry()
		asm, err := Assemble(ctx, resolve(t, fileProps(input, output)), reg, Dependencies{})
		require.NoError(t, err)
		require.NotNil(t, asm.Job)
		require.NotNil(t, asm.Step)
		assert.Equal(t, "job", asm.Job.JobName())
		assert.Equal(t, "job.step", asm.Step.StepName())
		assert.Equal(t, processor.KindNone, asm.Transformer.Kind())
		assert.Equal(t, []string{BeanItemReader, BeanItemWriter, BeanStep, BeanJob}, asm.Built)
		assert.Equal(t, []string{BeanItemReader, BeanItemWriter, BeanJob, BeanStep}, reg.Names())
	})
}

func TestAssemble_RespectsRegisteredComponents(t *testing.T) {
	ctx := context.Background()
	input := inputFile(t, "1,2\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	rcfg := config.NewConfig().Batch.Job.FileReader
	rcfg.Name = "custom"
	rcfg.Resource = input
	rcfg.Names = []string{"a", "b"}
	custom, err := reader.NewFlatFileItemReader(rcfg)
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, reg.Register(BeanItemReader, custom))

	asm, err := Assemble(ctx, resolve(t, fileProps(input, output)), reg, Dependencies{})
	require.NoError(t, err)
	assert.Same(t, custom, asm.Reader)
	assert.NotContains(t, asm.Built, BeanItemReader)
}

func TestAssemble_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := resolve(t, fileProps(inputFile(t, "1,2\n"), filepath.Join(t.TempDir(), "out.csv")))
	reg := NewRegistry()

	first, err := Assemble(ctx, cfg, reg, Dependencies{Metrics: prometheus.NewRegistry()})
	require.NoError(t, err)
	require.NotNil(t, first.Metrics)

	second, err := Assemble(ctx, cfg, reg, Dependencies{})
	require.NoError(t, err)
	assert.Same(t, first.Job, second.Job)
	assert.Same(t, first.Step, second.Step)
	assert.Same(t, first.Reader, second.Reader)
	assert.Empty(t, second.Built)
}

func TestAssemble_ConfigurationErrors(t *testing.T) {
	ctx := context.Background()
	input := inputFile(t, "1,2\n")
	output := filepath.Join(t.TempDir(), "out.csv")

	tests := []struct {
		name   string
		modify func(props map[string]string)
		deps   Dependencies
		setup  func(reg *Registry)
	}{
		{
			name:   "both writers",
			modify: func(p map[string]string) { p["batch.job.jdbcwriter.sql"] = "INSERT INTO foo VALUES (?, ?)" },
		},
		{
			name: "sql writer without data source",
			modify: func(p map[string]string) {
				delete(p, "batch.job.filewriter.name")
				p["batch.job.jdbcwriter.sql"] = "INSERT INTO foo VALUES (?, ?)"
			},
		},
		{
			name:   "missing job name",
			modify: func(p map[string]string) { delete(p, "batch.job.name") },
		},
		{
			name:   "non-positive chunk size",
			modify: func(p map[string]string) { p["batch.job.chunk-size"] = "0" },
		},
		{
			name:   "unknown item processor",
			modify: func(p map[string]string) { p["batch.job.itemprocessor"] = "missing" },
		},
		{
			name:   "item processor of unsupported type",
			modify: func(p map[string]string) { p["batch.job.itemprocessor"] = "notAFunction" },
			setup:  func(reg *Registry) { require.NoError(t, reg.Register("notAFunction", "just a string")) },
		},
		{
			name:   "registered reader of wrong type",
			modify: func(p map[string]string) {},
			setup:  func(reg *Registry) { require.NoError(t, reg.Register(BeanItemReader, 42)) },
		},
		{
			name:   "unknown incrementer",
			modify: func(p map[string]string) { p["batch.job.incrementer"] = "daily" },
		},
		{
			name:   "fixed width names and ranges mismatch",
			modify: func(p map[string]string) { p["batch.job.filereader.ranges"] = "1-1" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			props := fileProps(input, output)
			tt.modify(props)
			reg := NewRegistry()
			if tt.setup != nil {
				tt.setup(reg)
			}
			before := reg.Names()

			asm, err := Assemble(ctx, resolve(t, props), reg, tt.deps)
			require.ErrorIs(t, err, exception.ErrConfiguration)
			assert.Nil(t, asm)
			assert.Equal(t, before, reg.Names(), "nothing is registered on failure")
		})
	}

	_, err := Assemble(ctx, resolve(t, fileProps(input, output)), NewRegistry(), Dependencies{})
	assert.NoError(t, err)
}

func TestAssemble_UnsupportedProcessorNamesType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("notAFunction", "just a string"))
	props := fileProps(inputFile(t, "1,2\n"), filepath.Join(t.TempDir(), "out.csv"))
	props["batch.job.itemprocessor"] = "notAFunction"

	_, err := Assemble(context.Background(), resolve(t, props), reg, Dependencies{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")
}

func launch(t *testing.T, asm *Assembly, repo repository.JobRepository) (*core.JobExecution, error) {
	t.Helper()
	require.NotNil(t, asm.Job)
	return joblauncher.NewSimpleJobLauncher(repo).Launch(context.Background(), asm.Job, core.NewJobParameters())
}

func TestEndToEnd_FlatFileToFlatFile(t *testing.T) {
	input := inputFile(t, "1,2\n3,4\n")
	output := filepath.Join(t.TempDir(), "out.csv")
	repo := repository.NewMemoryJobRepository()

	asm, err := Assemble(context.Background(), resolve(t, fileProps(input, output)), NewRegistry(), Dependencies{JobRepository: repo})
	require.NoError(t, err)

	je, err := launch(t, asm, repo)
	require.NoError(t, err)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)

	res := je.StepExecutions[0].Result()
	assert.Equal(t, 2, res.ReadCount)
	assert.Equal(t, 2, res.WriteCount)
	assert.Equal(t, 1, res.CommitCount)
	assert.Nil(t, res.FailureCause)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n3,4\n", string(got))
}

func TestEndToEnd_WithTransformer(t *testing.T) {
	input := inputFile(t, "1,2\n3,4\n")
	output := filepath.Join(t.TempDir(), "out.csv")
	repo := repository.NewMemoryJobRepository()

	reg := NewRegistry()
	calls := 0
	require.NoError(t, reg.Register("countingTransformer", func(item *record.Record) *record.Record {
		calls++
		out := item.Clone()
		out.Set("count", 99)
		return out
	}))

	props := fileProps(input, output)
	props["batch.job.itemprocessor"] = "countingTransformer"
	props["batch.job.filewriter.names"] = "a,b,count"

	asm, err := Assemble(context.Background(), resolve(t, props), reg, Dependencies{JobRepository: repo})
	require.NoError(t, err)
	assert.Equal(t, processor.KindTransform, asm.Transformer.Kind())

	_, err = launch(t, asm, repo)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "1,2,99\n3,4,99\n", string(got))
}

func TestEndToEnd_FlatFileToSQL(t *testing.T) {
	db, conn := openSQLite(t)
	input := inputFile(t, "1,2\n3,4\n5,6\n")
	repo := repository.NewMemoryJobRepository()

	props := fileProps(input, "")
	delete(props, "batch.job.filewriter.name")
	props["batch.job.filereader.names"] = "first,second"
	props["batch.job.jdbcwriter.sql"] = "INSERT INTO foo (first, second) VALUES (:first, :second)"

	asm, err := Assemble(context.Background(), resolve(t, props), NewRegistry(),
		Dependencies{JobRepository: repo, DataSource: conn, DataSourceType: "sqlite"})
	require.NoError(t, err)
	assert.IsType(t, &writer.JdbcBatchItemWriter{}, asm.Writer)

	je, err := launch(t, asm, repo)
	require.NoError(t, err)
	assert.Equal(t, 3, je.StepExecutions[0].WriteCount)
	assert.Equal(t, 2, je.StepExecutions[0].CommitCount)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM foo").Scan(&n))
	assert.Equal(t, 3, n)
}

func TestEndToEnd_AssertUpdatesFailureStopsJob(t *testing.T) {
	db, conn := openSQLite(t)
	_, err := db.Exec("INSERT INTO foo (first, second) VALUES ('1', 'old'), ('3', 'old'), ('5', 'old')")
	require.NoError(t, err)

	input := inputFile(t, "1,new\n2,new\n3,new\n")
	repo := repository.NewMemoryJobRepository()

	props := fileProps(input, "")
	delete(props, "batch.job.filewriter.name")
	props["batch.job.chunk-size"] = "1"
	props["batch.job.filereader.names"] = "first,second"
	props["batch.job.jdbcwriter.sql"] = "UPDATE foo SET second = ? WHERE first = ?"
	props["batch.job.jdbcwriter.names"] = "second,first"

	asm, err := Assemble(context.Background(), resolve(t, props), NewRegistry(),
		Dependencies{JobRepository: repo, DataSource: conn, DataSourceType: "sqlite"})
	require.NoError(t, err)

	je, err := launch(t, asm, repo)
	require.ErrorIs(t, err, exception.ErrUnexpectedUpdateCount)
	assert.Equal(t, core.BatchStatusFailed, je.Status)

	res := je.StepExecutions[0].Result()
	assert.Equal(t, core.BatchStatusFailed, res.Status)
	assert.Equal(t, 1, res.CommitCount)
	assert.ErrorIs(t, res.FailureCause, exception.ErrUnexpectedUpdateCount)

	rows, err := db.Query("SELECT first, second FROM foo ORDER BY first")
	require.NoError(t, err)
	defer rows.Close()
	got := map[string]string{}
	for rows.Next() {
		var first, second string
		require.NoError(t, rows.Scan(&first, &second))
		got[first] = second
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, map[string]string{"1": "new", "3": "old", "5": "old"}, got)
}

func TestEndToEnd_RestartResumesFromCheckpoint(t *testing.T) {
	input := inputFile(t, "1,2\n3,4\nbroken\n5,6\n")
	output := filepath.Join(t.TempDir(), "out.csv")
	repo := repository.NewMemoryJobRepository()

	props := fileProps(input, output)
	props["batch.job.chunk-size"] = "1"
	cfg := resolve(t, props)

	asm, err := Assemble(context.Background(), cfg, NewRegistry(), Dependencies{JobRepository: repo})
	require.NoError(t, err)
	first, err := launch(t, asm, repo)
	require.ErrorIs(t, err, exception.ErrParse)
	assert.Equal(t, core.BatchStatusFailed, first.Status)

	require.NoError(t, os.WriteFile(input, []byte("1,2\n3,4\n7,8\n5,6\n"), 0o644))

	asm, err = Assemble(context.Background(), cfg, NewRegistry(), Dependencies{JobRepository: repo})
	require.NoError(t, err)
	second, err := launch(t, asm, repo)
	require.NoError(t, err)
	assert.Equal(t, first.JobInstanceID, second.JobInstanceID)
	assert.Equal(t, 2, second.StepExecutions[0].ReadCount)

	got, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "1,2\n3,4\n7,8\n5,6\n", string(got))
}
