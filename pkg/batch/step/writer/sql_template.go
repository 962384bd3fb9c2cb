package writer

import (
	"strings"

	"github.com/tigerroll/autobatch/pkg/batch/database"
)

// ParameterMode は SQL テンプレートのパラメータ形式です。
type ParameterMode int

const (
	// ModePositional は ? による位置指定パラメータです。
	ModePositional ParameterMode = iota
	// ModeNamed は :name による名前付きパラメータです。
	ModeNamed
)

func (m ParameterMode) String() string {
	if m == ModeNamed {
		return "named"
	}
	return "positional"
}

type placeholder struct {
	start, end int
	name       string // 位置指定の場合は空
}

// ParsedSQL は解析済みの SQL テンプレートです。
type ParsedSQL struct {
	text       string
	named      []placeholder
	positional []placeholder
}

// ParseSQL は SQL テンプレートから名前付きパラメータと ? を抽出します。
// 文字列リテラル、引用符付き識別子、コメント、:: キャスト内の記号は無視します。
// 名前付きパラメータが 1 つでもあれば、? が含まれていても名前付きとして扱います。
func ParseSQL(text string) *ParsedSQL {
	p := &ParsedSQL{text: text}
	n := len(text)

	for i := 0; i < n; {
		c := text[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(text, i, c)
		case c == '-' && i+1 < n && text[i+1] == '-':
			if j := strings.IndexByte(text[i:], '\n'); j >= 0 {
				i += j + 1
			} else {
				i = n
			}
		case c == '/' && i+1 < n && text[i+1] == '*':
			if j := strings.Index(text[i+2:], "*/"); j >= 0 {
				i += j + 4
			} else {
				i = n
			}
		case c == ':' && i+1 < n && text[i+1] == ':':
			i += 2
		case c == ':' && i+1 < n && isIdentStart(text[i+1]):
			j := i + 2
			for j < n && isIdentPart(text[j]) {
				j++
			}
			p.named = append(p.named, placeholder{start: i, end: j, name: text[i+1 : j]})
			i = j
		case c == '?':
			p.positional = append(p.positional, placeholder{start: i, end: i + 1})
			i++
		default:
			i++
		}
	}
	return p
}

// skipQuoted は引用符で囲まれた範囲の直後の位置を返します。引用符の連続はエスケープです。
func skipQuoted(text string, i int, quote byte) int {
	for j := i + 1; j < len(text); j++ {
		if text[j] != quote {
			continue
		}
		if j+1 < len(text) && text[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(text)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// Text は元の SQL テンプレートを返します。
func (p *ParsedSQL) Text() string {
	return p.text
}

// Mode はパラメータ形式を返します。
func (p *ParsedSQL) Mode() ParameterMode {
	if len(p.named) > 0 {
		return ModeNamed
	}
	return ModePositional
}

// ParameterNames は名前付きパラメータを出現順に返します。同じ名前が複数回現れることがあります。
func (p *ParsedSQL) ParameterNames() []string {
	names := make([]string, len(p.named))
	for i, ph := range p.named {
		names[i] = ph.name
	}
	return names
}

// PositionalCount は ? の数を返します。
func (p *ParsedSQL) PositionalCount() int {
	return len(p.positional)
}

// Render はパラメータをデータソースのバインド形式に置き換えた SQL を返します。
// 名前付きの場合、? はそのまま残ります。
func (p *ParsedSQL) Render(style database.BindStyle) string {
	targets := p.positional
	if p.Mode() == ModeNamed {
		targets = p.named
	}
	if len(targets) == 0 {
		return p.text
	}

	var sb strings.Builder
	last := 0
	for i, ph := range targets {
		sb.WriteString(p.text[last:ph.start])
		sb.WriteString(style.Placeholder(i + 1))
		last = ph.end
	}
	sb.WriteString(p.text[last:])
	return sb.String()
}
