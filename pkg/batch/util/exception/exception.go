package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind はエラーの分類を表します。
type ErrorKind string

const (
	KindGeneral               ErrorKind = "GENERAL"
	KindConfiguration         ErrorKind = "CONFIGURATION"
	KindResourceAccess        ErrorKind = "RESOURCE_ACCESS"
	KindParse                 ErrorKind = "PARSE"
	KindUnexpectedUpdateCount ErrorKind = "UNEXPECTED_UPDATE_COUNT"
)

// 分類ごとのセンチネルエラーです。errors.Is で判定に使用します。
var (
	ErrConfiguration         = errors.New("configuration error")
	ErrResourceAccess        = errors.New("resource access error")
	ErrParse                 = errors.New("parse error")
	ErrUnexpectedUpdateCount = errors.New("unexpected update count")
)

// BatchError はバッチ処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、分類、メッセージ、ラップされた元のエラーを保持します。
type BatchError struct {
	Module      string    // エラーが発生したモジュール (例: "reader", "writer", "autoconfigure")
	Kind        ErrorKind // エラーの分類
	Message     string    // エラーの簡潔な説明
	OriginalErr error     // ラップされた元のエラー
	LineNumber  int       // ParseError の場合の行番号 (1 始まり)
	Input       string    // ParseError の場合の入力行
	StackTrace  string    // スタックトレース (デバッグ用)
}

func newBatchError(module string, kind ErrorKind, message string, originalErr error) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchError は分類を持たない新しい BatchError のインスタンスを作成します。
func NewBatchError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindGeneral, message, originalErr)
}

// NewBatchErrorf はフォーマット文字列を使用して新しい BatchError のインスタンスを作成します。
// 最後の引数が error の場合はフォーマット引数から除外し、ラップ対象のエラーとして扱います。
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return newBatchError(module, KindGeneral, fmt.Sprintf(format, a...), originalErr)
}

// NewConfigurationError は設定不備を表すエラーを作成します。
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindConfiguration, message, originalErr)
}

// NewResourceAccessError はファイルやデータソースにアクセスできないことを表すエラーを作成します。
func NewResourceAccessError(module, message string, originalErr error) *BatchError {
	return newBatchError(module, KindResourceAccess, message, originalErr)
}

// NewParseError は入力行を解釈できないことを表すエラーを作成します。
func NewParseError(module, message string, lineNumber int, input string) *BatchError {
	e := newBatchError(module, KindParse, message, nil)
	e.LineNumber = lineNumber
	e.Input = input
	return e
}

// NewUnexpectedUpdateCountError は更新件数の検証に失敗したことを表すエラーを作成します。
func NewUnexpectedUpdateCountError(module string, expected, actual int64, item int) *BatchError {
	return newBatchError(module, KindUnexpectedUpdateCount,
		fmt.Sprintf("アイテム %d の更新件数が想定と異なります (期待値: %d, 実際: %d)", item, expected, actual), nil)
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	msg := e.Message
	if e.Kind == KindParse && e.LineNumber > 0 {
		msg = fmt.Sprintf("%s (行 %d: %q)", msg, e.LineNumber, e.Input)
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, msg, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, msg)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is は分類に対応するセンチネルエラーとの比較を可能にします。
func (e *BatchError) Is(target error) bool {
	switch target {
	case ErrConfiguration:
		return e.Kind == KindConfiguration
	case ErrResourceAccess:
		return e.Kind == KindResourceAccess
	case ErrParse:
		return e.Kind == KindParse
	case ErrUnexpectedUpdateCount:
		return e.Kind == KindUnexpectedUpdateCount
	}
	return false
}

// KindOf はエラーチェーン中の最初の BatchError の分類を返します。
// BatchError を含まない場合は KindGeneral を返します。
func KindOf(err error) ErrorKind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindGeneral
}
