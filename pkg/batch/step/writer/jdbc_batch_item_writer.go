package writer

import (
	"context"
	"database/sql"
	"fmt"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

// JdbcBatchItemWriter は Record ごとにパラメータ付き SQL を実行するライターです。
// チャンク内の全 Record は同じトランザクション・同じプリペアドステートメントで実行されます。
type JdbcBatchItemWriter struct {
	parsed        *ParsedSQL
	query         string
	names         []string
	assertUpdates bool
	db            database.DBConnection

	executionContext core.ExecutionContext
}

// NewJdbcBatchItemWriter は設定から JdbcBatchItemWriter を作成します。
// defaultNames は位置指定パラメータで names が未設定の場合に使用されます (通常はリーダーの names)。
func NewJdbcBatchItemWriter(cfg config.JdbcWriterConfig, db database.DBConnection, dbType string, defaultNames []string) (*JdbcBatchItemWriter, error) {
	if cfg.SQL == "" {
		return nil, exception.NewConfigurationError(module, "jdbcwriter.sql が設定されていません", nil)
	}
	if db == nil {
		return nil, exception.NewConfigurationError(module, "JdbcBatchItemWriter にはデータソースが必要です", nil)
	}

	parsed := ParseSQL(cfg.SQL)
	w := &JdbcBatchItemWriter{
		parsed:           parsed,
		query:            parsed.Render(database.BindStyleFor(dbType)),
		assertUpdates:    cfg.AssertUpdates,
		db:               db,
		executionContext: core.NewExecutionContext(),
	}

	if parsed.Mode() == ModeNamed {
		w.names = parsed.ParameterNames()
	} else {
		names := cfg.Names
		if len(names) == 0 {
			names = defaultNames
		}
		if len(names) != parsed.PositionalCount() {
			return nil, exception.NewConfigurationError(module,
				fmt.Sprintf("SQL のパラメータ数 (%d) と names の数 (%d) が一致しません: %s", parsed.PositionalCount(), len(names), cfg.SQL), nil)
		}
		w.names = append([]string(nil), names...)
	}

	logger.Debugf("JdbcBatchItemWriter を作成しました (%s モード): %s", parsed.Mode(), w.query)
	return w, nil
}

// Mode はパラメータ形式を返します。
func (w *JdbcBatchItemWriter) Mode() ParameterMode {
	return w.parsed.Mode()
}

// Query はデータソースのバインド形式に書き換えた SQL を返します。
func (w *JdbcBatchItemWriter) Query() string {
	return w.query
}

// Args は Record からバインドする値を取り出します。存在しないフィールドは nil になります。
func (w *JdbcBatchItemWriter) Args(item *record.Record) []any {
	return item.Values(w.names)
}

// Open は ItemWriter インターフェースの実装です。
func (w *JdbcBatchItemWriter) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return w.SetExecutionContext(ctx, ec)
}

// Write はチャンクの各 Record について SQL を実行します。
// tx が nil の場合はこのメソッド内でトランザクションを開始し、コミットします。
func (w *JdbcBatchItemWriter) Write(ctx context.Context, tx database.Tx, items []*record.Record) (err error) {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if len(items) == 0 {
		return nil
	}

	if tx == nil {
		local, beginErr := w.db.BeginTx(ctx, nil)
		if beginErr != nil {
			return exception.NewResourceAccessError(module, "トランザクションを開始できません", beginErr)
		}
		defer func() {
			if err != nil {
				if rbErr := local.Rollback(); rbErr != nil {
					logger.Errorf("JdbcBatchItemWriter: ロールバックに失敗しました: %v", rbErr)
				}
				return
			}
			if cmErr := local.Commit(); cmErr != nil {
				err = exception.NewResourceAccessError(module, "トランザクションのコミットに失敗しました", cmErr)
			}
		}()
		tx = local
	}

	stmt, err := tx.PrepareContext(ctx, w.query)
	if err != nil {
		return exception.NewResourceAccessError(module, fmt.Sprintf("SQL を準備できません: %s", w.query), err)
	}
	defer stmt.Close()

	for i, item := range items {
		var res sql.Result
		res, err = stmt.ExecContext(ctx, w.Args(item)...)
		if err != nil {
			return exception.NewResourceAccessError(module, fmt.Sprintf("アイテム %d の SQL 実行に失敗しました", i), err)
		}
		if !w.assertUpdates {
			continue
		}
		affected, raErr := res.RowsAffected()
		if raErr != nil {
			err = exception.NewResourceAccessError(module, "更新件数を取得できません", raErr)
			return err
		}
		if affected == 0 {
			err = exception.NewUnexpectedUpdateCountError(module, 1, affected, i)
			return err
		}
	}
	logger.Debugf("JdbcBatchItemWriter: %d 件の SQL を実行しました", len(items))
	return nil
}

// Close は ItemWriter インターフェースの実装です。データソースはライターの所有ではないため閉じません。
func (w *JdbcBatchItemWriter) Close(ctx context.Context) error {
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (w *JdbcBatchItemWriter) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if ec == nil {
		w.executionContext = core.NewExecutionContext()
		return nil
	}
	w.executionContext = ec.Copy()
	return nil
}

// GetExecutionContext は ExecutionContext を返します。
func (w *JdbcBatchItemWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return w.executionContext.Copy(), nil
}

var _ core.ItemWriter[*record.Record] = (*JdbcBatchItemWriter)(nil)
