// Package processor はリーダーとライターの間で Record を変換するステージを提供します。
package processor

import (
	"context"
	"fmt"

	core "github.com/tigerroll/autobatch/pkg/batch/job/core"
	"github.com/tigerroll/autobatch/pkg/batch/record"
	"github.com/tigerroll/autobatch/pkg/batch/util/exception"
)

const module = "processor"

// RecordTransformer は Record を変換します。nil を返した Record は書き込まれません (フィルタ)。
type RecordTransformer interface {
	Transform(ctx context.Context, item *record.Record) (*record.Record, error)
}

// TransformerFunc は関数を RecordTransformer として扱うためのアダプターです。
type TransformerFunc func(ctx context.Context, item *record.Record) (*record.Record, error)

// Transform は RecordTransformer の実装です。
func (f TransformerFunc) Transform(ctx context.Context, item *record.Record) (*record.Record, error) {
	return f(ctx, item)
}

// Resolve はレジストリに登録された値を RecordTransformer に変換します。
// 受け付ける型は RecordTransformer と単項関数のみで、それ以外は ConfigurationError です。
func Resolve(v any) (RecordTransformer, error) {
	switch t := v.(type) {
	case RecordTransformer:
		return t, nil
	case func(context.Context, *record.Record) (*record.Record, error):
		return TransformerFunc(t), nil
	case func(*record.Record) (*record.Record, error):
		return TransformerFunc(func(_ context.Context, item *record.Record) (*record.Record, error) {
			return t(item)
		}), nil
	case func(*record.Record) *record.Record:
		return TransformerFunc(func(_ context.Context, item *record.Record) (*record.Record, error) {
			return t(item), nil
		}), nil
	default:
		return nil, exception.NewConfigurationError(module,
			fmt.Sprintf("アイテムプロセッサとして使用できない型です: %T", v), nil)
	}
}

// Kind は Stage の種類です。
type Kind int

const (
	// KindNone は変換を行わず Record をそのまま渡します。
	KindNone Kind = iota
	// KindTransform は RecordTransformer を適用します。
	KindTransform
)

func (k Kind) String() string {
	if k == KindTransform {
		return "Transform"
	}
	return "None"
}

// Stage はチャンクステップの変換ステージです。組み立て時に一度だけ決定されます。
type Stage struct {
	kind        Kind
	transformer RecordTransformer

	executionContext core.ExecutionContext
}

// None は変換を行わない Stage を返します。
func None() *Stage {
	return &Stage{kind: KindNone, executionContext: core.NewExecutionContext()}
}

// Transform は transformer を適用する Stage を返します。transformer が nil の場合は None と同じです。
func Transform(transformer RecordTransformer) *Stage {
	if transformer == nil {
		return None()
	}
	return &Stage{kind: KindTransform, transformer: transformer, executionContext: core.NewExecutionContext()}
}

// Kind は Stage の種類を返します。
func (s *Stage) Kind() Kind {
	return s.kind
}

// Transformer は KindTransform の場合の RecordTransformer を返します。
func (s *Stage) Transformer() RecordTransformer {
	return s.transformer
}

// Process は ItemProcessor インターフェースの実装です。
func (s *Stage) Process(ctx context.Context, item *record.Record) (*record.Record, error) {
	if s.kind == KindNone {
		return item, nil
	}
	return s.transformer.Transform(ctx, item)
}

// SetExecutionContext は ExecutionContext を設定します。
func (s *Stage) SetExecutionContext(ctx context.Context, ec core.ExecutionContext) error {
	if ec == nil {
		s.executionContext = core.NewExecutionContext()
		return nil
	}
	s.executionContext = ec.Copy()
	return nil
}

// GetExecutionContext は ExecutionContext を返します。
func (s *Stage) GetExecutionContext(ctx context.Context) (core.ExecutionContext, error) {
	return s.executionContext.Copy(), nil
}

var _ core.ItemProcessor[*record.Record, *record.Record] = (*Stage)(nil)
