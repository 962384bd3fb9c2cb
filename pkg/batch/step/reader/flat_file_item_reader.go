package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"

	config "github.com/tigerroll/autobatch/pkg/batch/config"
	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/util/charset"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
	logger "github.com/tigerroll/autobatch/pkg/batch/util/logger"
)

const module = "reader"

// ReadCountKey は読み込み件数を保存する ExecutionContext のキー (接尾辞) です。
const ReadCountKey = "read.count"

// FlatFileItemReader は区切り文字形式または固定長形式のテキストファイルを 1 行ずつ Record に変換します。
type FlatFileItemReader struct {
	name             string
	resource         string
	names            []string
	tokenizer        LineTokenizer
	strict           bool
	parsingStrict    bool
	enc              encoding.Encoding
	linesToSkip      int
	saveState        bool
	maxItemCount     int
	currentItemCount int
	comments         []string

	file       *os.File
	scanner    *bufio.Reader
	lineNumber int
	readCount  int
	exhausted  bool

	executionContext core.ExecutionContext
}

// NewFlatFileItemReader は設定から FlatFileItemReader を作成します。
// 設定の不備はこの時点で ConfigurationError として返されます。
func NewFlatFileItemReader(cfg config.FileReaderConfig) (*FlatFileItemReader, error) {
	if cfg.Name == "" {
		return nil, exception.NewConfigurationError(module, "filereader.name が設定されていません", nil)
	}
	if len(cfg.Names) == 0 {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' の names が設定されていません", cfg.Name), nil)
	}
	if cfg.Delimited && cfg.FixedLength {
		return nil, exception.NewConfigurationError(module,
			fmt.Sprintf("'%s' に delimited と fixed-length の両方が指定されています", cfg.Name), nil)
	}

	enc, err := charset.Lookup(cfg.Encoding)
	if err != nil {
		return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' のエンコーディングが不正です", cfg.Name), err)
	}

	tokenizer, err := newTokenizer(cfg)
	if err != nil {
		return nil, err
	}

	maxItemCount := cfg.MaxItemCount
	if maxItemCount <= 0 {
		maxItemCount = int(^uint(0) >> 1)
	}
	if cfg.CurrentItemCount < 0 || cfg.LinesToSkip < 0 {
		return nil, exception.NewConfigurationError(module,
			fmt.Sprintf("'%s' の current-item-count と lines-to-skip は 0 以上である必要があります", cfg.Name), nil)
	}

	return &FlatFileItemReader{
		name:             cfg.Name,
		resource:         cfg.Resource,
		names:            append([]string(nil), cfg.Names...),
		tokenizer:        tokenizer,
		strict:           cfg.Strict,
		parsingStrict:    cfg.ParsingStrict,
		enc:              enc,
		linesToSkip:      cfg.LinesToSkip,
		saveState:        cfg.SaveState,
		maxItemCount:     maxItemCount,
		currentItemCount: cfg.CurrentItemCount,
		comments:         append([]string(nil), cfg.Comments...),
		executionContext: core.NewExecutionContext(),
	}, nil
}

// newTokenizer は設定から形式に応じた LineTokenizer を作成します。
// どちらの形式も指定されていない場合、ranges があれば固定長、なければ区切り文字形式です。
func newTokenizer(cfg config.FileReaderConfig) (LineTokenizer, error) {
	fixed := cfg.FixedLength || (!cfg.Delimited && len(cfg.Ranges) > 0)
	if fixed {
		if len(cfg.Ranges) == 0 {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' の ranges が設定されていません", cfg.Name), nil)
		}
		ranges, err := ParseRanges(cfg.Ranges)
		if err != nil {
			return nil, exception.NewConfigurationError(module, fmt.Sprintf("'%s' の ranges が不正です", cfg.Name), err)
		}
		if len(ranges) != len(cfg.Names) {
			return nil, exception.NewConfigurationError(module,
				fmt.Sprintf("'%s' の names (%d 件) と ranges (%d 件) の数が一致しません", cfg.Name, len(cfg.Names), len(ranges)), nil)
		}
		return &FixedLengthTokenizer{Ranges: ranges, Strict: cfg.ParsingStrict}, nil
	}

	var quote rune
	switch utf8.RuneCountInString(cfg.QuoteCharacter) {
	case 0:
	case 1:
		quote, _ = utf8.DecodeRuneInString(cfg.QuoteCharacter)
	default:
		return nil, exception.NewConfigurationError(module,
			fmt.Sprintf("'%s' の quote-character は 1 文字である必要があります: %q", cfg.Name, cfg.QuoteCharacter), nil)
	}
	for _, idx := range cfg.IncludedFields {
		if idx < 0 {
			return nil, exception.NewConfigurationError(module,
				fmt.Sprintf("'%s' の included-fields に負の値が含まれています: %d", cfg.Name, idx), nil)
		}
	}
	return &DelimitedLineTokenizer{
		Delimiter:      cfg.Delimiter,
		Quote:          quote,
		IncludedFields: append([]int(nil), cfg.IncludedFields...),
	}, nil
}

// Name はリーダー名を返します。
func (r *FlatFileItemReader) Name() string {
	return r.name
}

// Names は Record のフィールド名を返します。
func (r *FlatFileItemReader) Names() []string {
	return append([]string(nil), r.names...)
}

// ExecutionContextKey はリーダー名で修飾したキーを返します。
func (r *FlatFileItemReader) ExecutionContextKey(key string) string {
	return r.name + "." + key
}

// Open はファイルを開き、ExecutionContext に保存された件数まで読み飛ばします。
func (r *FlatFileItemReader) Open(ctx context.Context, ec core.ExecutionContext) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := r.SetExecutionContext(ctx, ec); err != nil {
		return err
	}

	start := r.currentItemCount
	if r.saveState {
		if n, ok := r.executionContext.GetInt(r.ExecutionContextKey(ReadCountKey)); ok {
			start = n
			logger.Infof("FlatFileItemReader '%s': 前回の実行から再開します (読み込み済み: %d 件)", r.name, n)
		}
	}

	r.readCount = 0
	r.lineNumber = 0
	r.exhausted = false

	f, err := os.Open(r.resource)
	if err != nil {
		if r.strict {
			return exception.NewResourceAccessError(module, fmt.Sprintf("入力ファイル '%s' を開けません", r.resource), err)
		}
		logger.Warnf("FlatFileItemReader '%s': 入力ファイル '%s' を開けないため、入力なしとして扱います: %v", r.name, r.resource, err)
		r.exhausted = true
		return nil
	}
	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		f.Close()
		if r.strict {
			return exception.NewResourceAccessError(module, fmt.Sprintf("入力ファイル '%s' が空です", r.resource), nil)
		}
		logger.Warnf("FlatFileItemReader '%s': 入力ファイル '%s' が空です", r.name, r.resource)
		r.exhausted = true
		return nil
	}

	r.file = f
	r.scanner = bufio.NewReader(charset.NewReader(f, r.enc))

	for i := 0; i < r.linesToSkip; i++ {
		if _, err := r.readLine(); err != nil {
			if errors.Is(err, io.EOF) {
				r.exhausted = true
				return nil
			}
			return err
		}
	}

	for r.readCount < start {
		if _, _, err := r.nextDataLine(); err != nil {
			if errors.Is(err, io.EOF) {
				r.exhausted = true
				return nil
			}
			return err
		}
		r.readCount++
	}
	logger.Debugf("FlatFileItemReader '%s' を開きました: %s", r.name, r.resource)
	return nil
}

// readLine は改行を除いた 1 行を返します。
func (r *FlatFileItemReader) readLine() (string, error) {
	line, err := r.scanner.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", exception.NewResourceAccessError(module, fmt.Sprintf("入力ファイル '%s' の読み込みに失敗しました", r.resource), err)
		}
		if line == "" {
			return "", io.EOF
		}
	}
	r.lineNumber++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if r.lineNumber == 1 {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	return line, nil
}

// nextDataLine はコメント行と空行を読み飛ばし、次のデータ行とその行番号を返します。
func (r *FlatFileItemReader) nextDataLine() (string, int, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return "", 0, err
		}
		if line == "" || r.isComment(line) {
			continue
		}
		return line, r.lineNumber, nil
	}
}

func (r *FlatFileItemReader) isComment(line string) bool {
	for _, prefix := range r.comments {
		if prefix != "" && strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// Read は次の Record を返します。入力の終端では (nil, io.EOF) を返します。
func (r *FlatFileItemReader) Read(ctx context.Context) (*record.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if r.exhausted || r.scanner == nil || r.readCount >= r.maxItemCount {
		return nil, io.EOF
	}

	line, lineNumber, err := r.nextDataLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.exhausted = true
		}
		return nil, err
	}

	item, err := r.mapLine(line, lineNumber)
	if err != nil {
		return nil, err
	}
	r.readCount++
	return item, nil
}

// mapLine は行をトークンに分割し、names と位置で対応付けた Record を作成します。
func (r *FlatFileItemReader) mapLine(line string, lineNumber int) (*record.Record, error) {
	tokens, err := r.tokenizer.Tokenize(line)
	if err != nil {
		return nil, exception.NewParseError(module, fmt.Sprintf("'%s' の行を解析できません: %v", r.name, err), lineNumber, line)
	}
	if r.parsingStrict && len(tokens) != len(r.names) {
		return nil, exception.NewParseError(module,
			fmt.Sprintf("'%s' のトークン数が names と一致しません (期待値: %d, 実際: %d)", r.name, len(r.names), len(tokens)),
			lineNumber, line)
	}

	n := min(len(tokens), len(r.names))
	values := make([]any, n)
	for i := 0; i < n; i++ {
		values[i] = strings.TrimSpace(tokens[i])
	}
	return record.FromPairs(r.names[:n], values), nil
}

// Close はファイルを閉じます。
func (r *FlatFileItemReader) Close(ctx context.Context) error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.scanner = nil
	if err != nil {
		return exception.NewResourceAccessError(module, fmt.Sprintf("入力ファイル '%s' を閉じられません", r.resource), err)
	}
	logger.Debugf("FlatFileItemReader '%s' を閉じました。読み込み件数: %d", r.name, r.readCount)
	return nil
}

// SetExecutionContext は ExecutionContext を設定します。
func (r *FlatFileItemReader) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if ec == nil {
		r.executionContext = core.NewExecutionContext()
		return nil
	}
	r.executionContext = ec.Copy()
	return nil
}

// GetExecutionContext は現在の読み込み件数を含む ExecutionContext を返します。
// saveState が false の場合、件数は保存されません。
func (r *FlatFileItemReader) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	ec := r.executionContext.Copy()
	if r.saveState {
		ec.Put(r.ExecutionContextKey(ReadCountKey), r.readCount)
	}
	return ec, nil
}

var _ core.ItemReader[*record.Record] = (*FlatFileItemReader)(nil)
