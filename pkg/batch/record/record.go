// Package record は読み込み・変換・書き込みの間を流れるアイテム Record を提供します。
package record

import (
	"fmt"
	"strings"
)

// Record はフィールド名から値への順序付きマップです。
// 反復順はフィールドが最初に設定された順序です。
type Record struct {
	fields []string
	values map[string]any
}

// New は空の Record を作成します。
func New() *Record {
	return &Record{values: make(map[string]any)}
}

// FromPairs はフィールド名と値のスライスから Record を作成します。
// values が短い場合、足りないフィールドは設定されません。
func FromPairs(names []string, values []any) *Record {
	r := &Record{
		fields: make([]string, 0, len(names)),
		values: make(map[string]any, len(names)),
	}
	for i, name := range names {
		if i >= len(values) {
			break
		}
		r.Set(name, values[i])
	}
	return r
}

// Set はフィールドに値を設定します。既存のフィールドは位置を保ったまま上書きされます。
func (r *Record) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[name]; !ok {
		r.fields = append(r.fields, name)
	}
	r.values[name] = value
}

// Get はフィールドの値を返します。存在しない場合は (nil, false) です。
func (r *Record) Get(name string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[name]
	return v, ok
}

// GetString はフィールドの値を文字列で返します。存在しない場合は空文字列です。
func (r *Record) GetString(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Has はフィールドが存在するかどうかを返します。
func (r *Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Fields はフィールド名を挿入順で返します。
func (r *Record) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len はフィールド数を返します。
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Values は names の順に値を取り出します。存在しないフィールドは nil です。
func (r *Record) Values(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i], _ = r.Get(name)
	}
	return out
}

// Clone は Record の浅いコピーを返します。
func (r *Record) Clone() *Record {
	c := New()
	for _, f := range r.Fields() {
		c.Set(f, r.values[f])
	}
	return c
}

// String は "{a=1, b=2}" 形式の文字列を返します。
func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s=%v", f, r.values[f])
	}
	sb.WriteByte('}')
	return sb.String()
}
