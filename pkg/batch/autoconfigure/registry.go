// Package autoconfigure は設定からリーダー、ライター、変換、ステップ、ジョブを組み立てます。
// 各コンポーネントは設定が存在し、かつレジストリに同等のコンポーネントがない場合にのみ作成されます。
package autoconfigure

import (
	"fmt"
	"sort"
	"sync"
)

// レジストリ上の既定のコンポーネント名です。
const (
	BeanItemReader = "itemReader"
	BeanItemWriter = "itemWriter"
	BeanStep       = "step"
	BeanJob        = "job"
)

// Registry は名前付きのコンポーネントを保持します。
// 利用者は組み立て前に独自のリーダー、ライター、変換関数を登録できます。
type Registry struct {
	mu    sync.RWMutex
	beans map[string]any
}

// NewRegistry は空の Registry を作成します。
func NewRegistry() *Registry {
	return &Registry{beans: make(map[string]any)}
}

// Register はコンポーネントを登録します。同じ名前が既に登録されている場合はエラーです。
func (r *Registry) Register(name string, v any) error {
	if name == "" {
		return fmt.Errorf("コンポーネント名が空です")
	}
	if v == nil {
		return fmt.Errorf("コンポーネント '%s' が nil です", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.beans[name]; exists {
		return fmt.Errorf("コンポーネント '%s' は既に登録されています", name)
	}
	r.beans[name] = v
	return nil
}

// Lookup は名前で登録されたコンポーネントを返します。
func (r *Registry) Lookup(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.beans[name]
	return v, ok
}

// Has は名前が登録されているかを返します。
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names は登録されている名前をソートして返します。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.beans))
	for name := range r.beans {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// registerAll は全てのコンポーネントをまとめて登録します。いずれかが既に存在する場合は何も登録しません。
func (r *Registry) registerAll(beans map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range beans {
		if _, exists := r.beans[name]; exists {
			return fmt.Errorf("コンポーネント '%s' は既に登録されています", name)
		}
	}
	for name, v := range beans {
		r.beans[name] = v
	}
	return nil
}
