package reader

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var errUnterminatedQuote = errors.New("引用符が閉じられていません")

// LineTokenizer は 1 行をトークンに分割します。
type LineTokenizer interface {
	Tokenize(line string) ([]string, error)
}

// DelimitedLineTokenizer は区切り文字で行を分割します。
// Quote で始まるフィールドは区切り文字を含むことができ、引用符の連続 ("") はリテラルの引用符になります。
type DelimitedLineTokenizer struct {
	Delimiter      string
	Quote          rune // 0 の場合は引用符を扱いません
	IncludedFields []int
}

// Tokenize は DelimitedLineTokenizer の実装です。
func (t *DelimitedLineTokenizer) Tokenize(line string) ([]string, error) {
	delim := t.Delimiter
	if delim == "" {
		delim = ","
	}

	tokens := make([]string, 0, 8)
	var field strings.Builder
	inQuotes := false
	atFieldStart := true

	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])

		if inQuotes {
			if r == t.Quote {
				next, nsize := utf8.DecodeRuneInString(line[i+size:])
				if i+size < len(line) && next == t.Quote {
					field.WriteRune(t.Quote)
					i += size + nsize
					continue
				}
				inQuotes = false
				i += size
				continue
			}
			field.WriteRune(r)
			i += size
			continue
		}

		if strings.HasPrefix(line[i:], delim) {
			tokens = append(tokens, field.String())
			field.Reset()
			atFieldStart = true
			i += len(delim)
			continue
		}
		if t.Quote != 0 && r == t.Quote && atFieldStart {
			inQuotes = true
			atFieldStart = false
			i += size
			continue
		}
		// 引用符の前の空白は読み飛ばさずにフィールド開始扱いを維持する
		if r != ' ' && r != '\t' {
			atFieldStart = false
		}
		field.WriteRune(r)
		i += size
	}
	if inQuotes {
		return nil, errUnterminatedQuote
	}
	tokens = append(tokens, field.String())

	if len(t.IncludedFields) == 0 {
		return tokens, nil
	}
	selected := make([]string, 0, len(t.IncludedFields))
	for _, idx := range t.IncludedFields {
		if idx >= 0 && idx < len(tokens) {
			selected = append(selected, tokens[idx])
		}
	}
	return selected, nil
}

// Range は 1 始まりの列範囲 [Min, Max] です。Max が 0 の場合は行末までを表します。
type Range struct {
	Min int
	Max int
}

// HasMax は上限が指定されているかを返します。
func (r Range) HasMax() bool {
	return r.Max > 0
}

func (r Range) String() string {
	if !r.HasMax() {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ParseRange は "1-3"、"5"、"5-" 形式の文字列を Range に変換します。
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	minStr, maxStr, hasDash := strings.Cut(s, "-")
	lo, err := strconv.Atoi(strings.TrimSpace(minStr))
	if err != nil || lo < 1 {
		return Range{}, fmt.Errorf("範囲 %q の開始位置が不正です", s)
	}
	if !hasDash || strings.TrimSpace(maxStr) == "" {
		return Range{Min: lo}, nil
	}
	hi, err := strconv.Atoi(strings.TrimSpace(maxStr))
	if err != nil || hi < lo {
		return Range{}, fmt.Errorf("範囲 %q の終了位置が不正です", s)
	}
	return Range{Min: lo, Max: hi}, nil
}

// ParseRanges は複数の範囲文字列を変換します。
func ParseRanges(specs []string) ([]Range, error) {
	ranges := make([]Range, 0, len(specs))
	for _, s := range specs {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// errLineLength は固定長の行の長さが範囲と一致しないことを表します。
type errLineLength struct {
	expected, actual int
}

func (e *errLineLength) Error() string {
	return fmt.Sprintf("行の長さが不正です (期待値: %d, 実際: %d)", e.expected, e.actual)
}

// FixedLengthTokenizer は列範囲で行を切り出します。位置は文字 (rune) 単位です。
// Strict の場合、行の長さが範囲の最大位置と一致しなければエラーになります。
type FixedLengthTokenizer struct {
	Ranges []Range
	Strict bool
}

func (t *FixedLengthTokenizer) maxColumn() (int, bool) {
	maxCol, open := 0, false
	for _, r := range t.Ranges {
		if r.HasMax() {
			maxCol = max(maxCol, r.Max)
		} else {
			open = true
			maxCol = max(maxCol, r.Min)
		}
	}
	return maxCol, open
}

// Tokenize は FixedLengthTokenizer の実装です。
func (t *FixedLengthTokenizer) Tokenize(line string) ([]string, error) {
	runes := []rune(line)
	n := len(runes)

	if t.Strict {
		maxCol, open := t.maxColumn()
		if n < maxCol || (!open && n > maxCol) {
			return nil, &errLineLength{expected: maxCol, actual: n}
		}
	}

	tokens := make([]string, len(t.Ranges))
	for i, r := range t.Ranges {
		start := r.Min - 1
		end := n
		if r.HasMax() && r.Max < n {
			end = r.Max
		}
		if start >= n || start >= end {
			tokens[i] = ""
			continue
		}
		tokens[i] = string(runes[start:end])
	}
	return tokens, nil
}

var (
	_ LineTokenizer = (*DelimitedLineTokenizer)(nil)
	_ LineTokenizer = (*FixedLengthTokenizer)(nil)
)
