package writer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	"github.com/tigerroll/autobatch/pkg/batch/database"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/util/charset"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "writer"

// CurrentCountKey は書き込み済みバイト位置を保存する ExecutionContext のキー (接尾辞) です。
const CurrentCountKey = "current.count"

// FlatFileItemWriter は Record を区切り文字形式の行としてファイルに書き込みます。
type FlatFileItemWriter struct {
	name          string
	resource      string
	names         []string
	delimiter     string
	lineSeparator string
	append        bool
	saveState     bool
	enc           encoding.Encoding

	file     *os.File
	position int64
	written  int

	executionContext core.ExecutionContext
}

// NewFlatFileItemWriter は設定から FlatFileItemWriter を作成します。
func NewFlatFileItemWriter(cfg config.FileWriterConfig) (*FlatFileItemWriter, error) {
	if cfg.Name == "" {
		return nil, exception.NewConfigurationError(module, "filewriter.name が設定されていません", nil)
	}
	if cfg.Resource == "" {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' の resource が設定されていません", cfg.Name), nil)
	}
	if len(cfg.Names) == 0 {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' の names が設定されていません", cfg.Name), nil)
	}
	enc, err := charset.Lookup(cfg.Encoding)
	if err != nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' のエンコーディングが不正です", cfg.Name), err)
	}

	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = ","
	}
	lineSeparator := cfg.LineSeparator
	if lineSeparator == "" {
		lineSeparator = "\n"
	}

	return &FlatFileItemWriter{
		name:             cfg.Name,
		resource:         cfg.Resource,
		names:            append([]string(nil), cfg.Names...),
		delimiter:        delimiter,
		lineSeparator:    lineSeparator,
		append:           cfg.Append,
		saveState:        cfg.SaveState,
		enc:              enc,
		executionContext: core.NewExecutionContext(),
	}, nil
}

// Name はライター名を返します。
func (w *FlatFileItemWriter) Name() string {
	return w.name
}

// ExecutionContextKey はライター名で修飾したキーを返します。
func (w *FlatFileItemWriter) ExecutionContextKey(key string) string {
	return w.name + "." + key
}

// Open は出力ファイルを開きます。
// 再開時は保存されたバイト位置までファイルを切り詰め、未コミットのチャンクを破棄します。
func (w *FlatFileItemWriter) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := w.SetExecutionContext(ctx, ec); err != nil {
		return err
	}

	if dir := filepath.Dir(w.resource); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return exception.NewResourceAccessError(module, fmt.Sprintf("出力ディレクトリ '%s' を作成できません", dir), err)
		}
	}

	restart := int64(-1)
	if w.saveState {
		if n, ok := w.executionContext.GetInt64(w.ExecutionContextKey(CurrentCountKey)); ok {
			restart = n
		}
	}

	var (
		f   *os.File
		err error
	)
	switch {
	case restart >= 0:
		f, err = os.OpenFile(w.resource, os.O_WRONLY|os.O_CREATE, 0o644)
		if err == nil {
			err = f.Truncate(restart)
		}
		if err == nil {
			_, err = f.Seek(restart, io.SeekStart)
		}
		w.position = restart
		logger.Infof("FlatFileItemWriter '%s': 前回の実行から再開します (位置: %d バイト)", w.name, restart)
	case w.append:
		f, err = os.OpenFile(w.resource, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			var info os.FileInfo
			if info, err = f.Stat(); err == nil {
				w.position = info.Size()
			}
		}
	default:
		f, err = os.OpenFile(w.resource, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		w.position = 0
	}
	if err != nil {
		if f != nil {
			f.Close()
		}
		return exception.NewResourceAccessError(module, fmt.Sprintf("出力ファイル '%s' を開けません", w.resource), err)
	}

	w.file = f
	w.written = 0
	logger.Debugf("FlatFileItemWriter '%s' を開きました: %s", w.name, w.resource)
	return nil
}

// FormatLine は Record を 1 行に整形します。存在しないフィールドは空文字列になります。
func (w *FlatFileItemWriter) FormatLine(item *record.Record) string {
	var sb strings.Builder
	for i, v := range item.Values(w.names) {
		if i > 0 {
			sb.WriteString(w.delimiter)
		}
		if v != nil {
			sb.WriteString(fmt.Sprint(v))
		}
	}
	return sb.String()
}

// Write はチャンク全体を 1 回の書き込みでファイルに出力します。tx は使用しません。
func (w *FlatFileItemWriter) Write(ctx context.Context, tx database.Tx, items []*record.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if w.file == nil {
		return exception.NewResourceAccessError(module, fmt.Sprintf("FlatFileItemWriter '%s' が開かれていません", w.name), nil)
	}
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, item := range items {
		buf.WriteString(w.FormatLine(item))
		buf.WriteString(w.lineSeparator)
	}
	out, err := charset.Encode(buf.Bytes(), w.enc)
	if err != nil {
		return exception.NewBatchError(module, fmt.Sprintf("'%s' の出力をエンコードできません", w.name), err)
	}

	n, err := w.file.Write(out)
	w.position += int64(n)
	if err != nil {
		return exception.NewResourceAccessError(module, fmt.Sprintf("出力ファイル '%s' への書き込みに失敗しました", w.resource), err)
	}
	w.written += len(items)
	logger.Debugf("FlatFileItemWriter '%s': %d 件を書き込みました", w.name, len(items))
	return nil
}

// Close はファイルを閉じます。
func (w *FlatFileItemWriter) Close(ctx context.Context) error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return exception.NewResourceAccessError(module, fmt.Sprintf("出力ファイル '%s' を閉じられません", w.resource), err)
	}
	logger.Debugf("FlatFileItemWriter '%s' を閉じました。書き込み件数: %d", w.name, w.written)
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (w *FlatFileItemWriter) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if ec == nil {
		w.executionContext = core.NewExecutionContext()
		return nil
	}
	w.executionContext = ec.Copy()
	return nil
}

// GetExecutionContext は現在のバイト位置を含む ExecutionContext を返します。
func (w *FlatFileItemWriter) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := w.executionContext.Copy()
	if w.saveState {
		ec.Put(w.ExecutionContextKey(CurrentCountKey), w.position)
	}
	return ec, nil
}

var _ core.ItemWriter[*record.Record] = (*FlatFileItemWriter)(nil)
