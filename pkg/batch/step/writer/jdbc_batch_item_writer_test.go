package writer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

func openTestDB(t *testing.T) (*sql.DB, database.DBConnection) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE foo (a TEXT, b TEXT)")
	require.NoError(t, err)
	return db, database.NewSQLDBAdapter(db)
}

func rec(pairs ...string) *record.Record {
	r := record.New()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

func queryRows(t *testing.T, db *sql.DB, query string) [][2]sql.NullString {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	var out [][2]sql.NullString
	for rows.Next() {
		var row [2]sql.NullString
		require.NoError(t, rows.Scan(&row[0], &row[1]))
		out = append(out, row)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestJdbcBatchItemWriter_Positional(t *testing.T) {
	ctx := context.Background()
	db, conn := openTestDB(t)

	cfg := config.JdbcWriterConfig{SQL: "INSERT INTO foo (a, b) VALUES (?, ?)", AssertUpdates: true}
	w, err := NewJdbcBatchItemWriter(cfg, conn, "sqlite", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, ModePositional, w.Mode())
	require.NoError(t, w.Open(ctx, nil))

	require.NoError(t, w.Write(ctx, nil, []*record.Record{rec("a", "1", "b", "2"), rec("a", "3", "b", "4")}))
	require.NoError(t, w.Close(ctx))

	rows := queryRows(t, db, "SELECT a, b FROM foo ORDER BY a")
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0][0].String)
	assert.Equal(t, "2", rows[0][1].String)
	assert.Equal(t, "3", rows[1][0].String)
	assert.Equal(t, "4", rows[1][1].String)
}

func TestJdbcBatchItemWriter_PositionalBindsInNameOrder(t *testing.T) {
	ctx := context.Background()
	db, conn := openTestDB(t)

	cfg := config.JdbcWriterConfig{SQL: "INSERT INTO foo (a, b) VALUES (?, ?)", Names: []string{"y", "x"}}
	w, err := NewJdbcBatchItemWriter(cfg, conn, "sqlite", nil)
	require.NoError(t, err)

	require.NoError(t, w.Write(ctx, nil, []*record.Record{rec("x", "first", "y", "second")}))

	rows := queryRows(t, db, "SELECT a, b FROM foo")
	require.Len(t, rows, 1)
	assert.Equal(t, "second", rows[0][0].String)
	assert.Equal(t, "first", rows[0][1].String)
}

func TestJdbcBatchItemWriter_NamedMissingKeyBindsNull(t *testing.T) {
	ctx := context.Background()
	db, conn := openTestDB(t)

	cfg := config.JdbcWriterConfig{SQL: "INSERT INTO foo (a, b) VALUES (:a, :b)", AssertUpdates: true}
	w, err := NewJdbcBatchItemWriter(cfg, conn, "sqlite", nil)
	require.NoError(t, err)
	assert.Equal(t, ModeNamed, w.Mode())
	assert.Equal(t, "INSERT INTO foo (a, b) VALUES (?, ?)", w.Query())

	require.NoError(t, w.Write(ctx, nil, []*record.Record{rec("a", "only-a")}))

	rows := queryRows(t, db, "SELECT a, b FROM foo")
	require.Len(t, rows, 1)
	assert.Equal(t, "only-a", rows[0][0].String)
	assert.False(t, rows[0][1].Valid)
}

func TestJdbcBatchItemWriter_UsesGivenTransaction(t *testing.T) {
	ctx := context.Background()
	db, conn := openTestDB(t)

	w, err := NewJdbcBatchItemWriter(config.JdbcWriterConfig{SQL: "INSERT INTO foo (a, b) VALUES (:a, :b)"}, conn, "sqlite", nil)
	require.NoError(t, err)

	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, tx, []*record.Record{rec("a", "1", "b", "2")}))
	require.NoError(t, tx.Rollback())

	assert.Empty(t, queryRows(t, db, "SELECT a, b FROM foo"))
}

func TestJdbcBatchItemWriter_AssertUpdates(t *testing.T) {
	ctx := context.Background()
	db, conn := openTestDB(t)
	_, err := db.Exec("INSERT INTO foo (a, b) VALUES ('1', 'x')")
	require.NoError(t, err)

	t.Run("zero rows fails and rolls back the chunk", func(t *testing.T) {
		cfg := config.JdbcWriterConfig{SQL: "UPDATE foo SET b = :b WHERE a = :a", AssertUpdates: true}
		w, err := NewJdbcBatchItemWriter(cfg, conn, "sqlite", nil)
		require.NoError(t, err)

		err = w.Write(ctx, nil, []*record.Record{rec("a", "1", "b", "updated"), rec("a", "missing", "b", "y")})
		require.ErrorIs(t, err, exception.ErrUnexpectedUpdateCount)

		rows := queryRows(t, db, "SELECT a, b FROM foo")
		require.Len(t, rows, 1)
		assert.Equal(t, "x", rows[0][1].String)
	})

	t.Run("disabled", func(t *testing.T) {
		cfg := config.JdbcWriterConfig{SQL: "UPDATE foo SET b = :b WHERE a = :a", AssertUpdates: false}
		w, err := NewJdbcBatchItemWriter(cfg, conn, "sqlite", nil)
		require.NoError(t, err)
		assert.NoError(t, w.Write(ctx, nil, []*record.Record{rec("a", "missing", "b", "y")}))
	})
}

func TestNewJdbcBatchItemWriter_ConfigurationErrors(t *testing.T) {
	_, conn := openTestDB(t)

	tests := []struct {
		name  string
		cfg   config.JdbcWriterConfig
		conn  database.DBConnection
		names []string
	}{
		{name: "empty sql", cfg: config.JdbcWriterConfig{}, conn: conn},
		{name: "no data source", cfg: config.JdbcWriterConfig{SQL: "INSERT INTO foo VALUES (?, ?)"}, names: []string{"a", "b"}},
		{name: "too few names", cfg: config.JdbcWriterConfig{SQL: "INSERT INTO foo VALUES (?, ?)", Names: []string{"a"}}, conn: conn},
		{name: "too many default names", cfg: config.JdbcWriterConfig{SQL: "INSERT INTO foo (a) VALUES (?)"}, conn: conn, names: []string{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJdbcBatchItemWriter(tt.cfg, tt.conn, "sqlite", tt.names)
			assert.ErrorIs(t, err, exception.ErrConfiguration)
		})
	}
}

func TestJdbcBatchItemWriter_BindStyle(t *testing.T) {
	_, conn := openTestDB(t)
	w, err := NewJdbcBatchItemWriter(config.JdbcWriterConfig{SQL: "INSERT INTO foo VALUES (:a, :b)"}, conn, "postgres", nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO foo VALUES ($1, $2)", w.Query())

	w, err = NewJdbcBatchItemWriter(config.JdbcWriterConfig{SQL: "INSERT INTO foo VALUES (?, ?)", Names: []string{"a", "b"}}, conn, "sqlserver", nil)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO foo VALUES (@p1, @p2)", w.Query())
}
