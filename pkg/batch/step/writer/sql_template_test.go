package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/autobatch/pkg/batch/database"
)

func TestParseSQL(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		mode       ParameterMode
		names      []string
		positional int
	}{
		{name: "positional", sql: "INSERT INTO t (a, b) VALUES (?, ?)", mode: ModePositional, names: []string{}, positional: 2},
		{name: "named", sql: "INSERT INTO t (a, b) VALUES (:a, :b_2)", mode: ModeNamed, names: []string{"a", "b_2"}},
		{name: "named wins over positional", sql: "UPDATE t SET a = :a WHERE b = ?", mode: ModeNamed, names: []string{"a"}, positional: 1},
		{name: "repeated name", sql: "UPDATE t SET a = :a WHERE a <> :a", mode: ModeNamed, names: []string{"a", "a"}},
		{name: "string literal ignored", sql: "INSERT INTO t VALUES (':x', '?', 'it''s :y', ?)", mode: ModePositional, names: []string{}, positional: 1},
		{name: "quoted identifier ignored", sql: `SELECT ":a?" FROM t WHERE b = ?`, mode: ModePositional, names: []string{}, positional: 1},
		{name: "comments ignored", sql: "SELECT 1 -- :a ?\nFROM t /* :b ? */ WHERE c = :c", mode: ModeNamed, names: []string{"c"}},
		{name: "cast ignored", sql: "INSERT INTO t VALUES (:a::text, '1'::int)", mode: ModeNamed, names: []string{"a"}},
		{name: "no parameters", sql: "DELETE FROM t", mode: ModePositional, names: []string{}},
		{name: "colon without identifier", sql: "SELECT ': ' || ?", mode: ModePositional, names: []string{}, positional: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseSQL(tt.sql)
			assert.Equal(t, tt.mode, p.Mode())
			assert.Equal(t, tt.names, p.ParameterNames())
			assert.Equal(t, tt.positional, p.PositionalCount())
			assert.Equal(t, tt.sql, p.Text())
		})
	}
}

func TestParsedSQL_Render(t *testing.T) {
	named := ParseSQL("INSERT INTO t (a, b) VALUES (:a, :b) -- :c")
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (?, ?) -- :c", named.Render(database.BindQuestion))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2) -- :c", named.Render(database.BindDollar))
	assert.Equal(t, "INSERT INTO t (a, b) VALUES (@p1, @p2) -- :c", named.Render(database.BindAtP))

	positional := ParseSQL("UPDATE t SET a = ? WHERE b = '?' AND c = ?")
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = '?' AND c = $2", positional.Render(database.BindDollar))

	mixed := ParseSQL("UPDATE t SET a = :a WHERE b = ?")
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = ?", mixed.Render(database.BindDollar))
}
