package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Tx はデータベーストランザクションのインターフェースです。
// sql.Tx の必要なメソッドを抽象化します。
type Tx interface {
	Commit() error
	Rollback() error
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DBConnection はデータベース接続のインターフェースです。
// sql.DB の必要なメソッドを抽象化します。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlTxAdapter は sql.Tx を Tx インターフェースに適合させるアダプターです。
// sql.Tx のメソッドをそのまま公開します。
type sqlTxAdapter struct {
	*sql.Tx
}

// sqlDBAdapter は sql.DB を DBConnection インターフェースに適合させるアダプターです。
type sqlDBAdapter struct {
	db *sql.DB
}

// NewSQLDBAdapter は新しい sqlDBAdapter のインスタンスを作成します。
func NewSQLDBAdapter(db *sql.DB) DBConnection {
	return &sqlDBAdapter{db: db}
}

// BeginTx は sql.DB の BeginTx メソッドを呼び出し、結果を Tx でラップします。
func (a *sqlDBAdapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := a.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTxAdapter{tx}, nil
}

func (a *sqlDBAdapter) Close() error {
	return a.db.Close()
}

func (a *sqlDBAdapter) PingContext(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

func (a *sqlDBAdapter) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return a.db.ExecContext(ctx, query, args...)
}

func (a *sqlDBAdapter) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return a.db.QueryContext(ctx, query, args...)
}

func (a *sqlDBAdapter) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return a.db.QueryRowContext(ctx, query, args...)
}

var (
	_ Tx           = (*sqlTxAdapter)(nil)
	_ DBConnection = (*sqlDBAdapter)(nil)
)

// BindStyle はドライバが受け付けるプレースホルダの書式です。
type BindStyle int

const (
	BindQuestion BindStyle = iota // ?
	BindDollar                    // $1, $2, ...
	BindAtP                       // @p1, @p2, ...
)

// BindStyleFor はデータベース種別に対応する BindStyle を返します。
func BindStyleFor(dbType string) BindStyle {
	switch strings.ToLower(dbType) {
	case "postgres", "redshift", "pgx":
		return BindDollar
	case "sqlserver":
		return BindAtP
	default:
		return BindQuestion
	}
}

// Placeholder は n 番目 (1 始まり) のパラメータのプレースホルダを返します。
func (s BindStyle) Placeholder(n int) string {
	switch s {
	case BindDollar:
		return "$" + strconv.Itoa(n)
	case BindAtP:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

// Rebind は '?' で書かれたクエリを BindStyle の書式に書き換えます。
// 文字列リテラルを含まない内部クエリ向けです。
func Rebind(style BindStyle, query string) string {
	if style == BindQuestion {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			sb.WriteString(style.Placeholder(n))
			continue
		}
		sb.WriteByte(query[i])
	}
	return sb.String()
}
