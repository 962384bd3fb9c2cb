// Package charset はファイル入出力の文字エンコーディングを解決します。
package charset

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Lookup はエンコーディング名 (例: "UTF-8", "Shift_JIS", "ISO-8859-1") を解決します。
// UTF-8 と空文字列は変換不要として nil を返します。
func Lookup(name string) (encoding.Encoding, error) {
	n := strings.TrimSpace(name)
	if n == "" || strings.EqualFold(n, "utf-8") || strings.EqualFold(n, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

// NewReader は enc でデコードする io.Reader を返します。enc が nil の場合は r をそのまま返します。
func NewReader(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc == nil {
		return r
	}
	return transform.NewReader(r, enc.NewDecoder())
}

// Encode は UTF-8 のバイト列を enc でエンコードします。enc が nil の場合は入力をそのまま返します。
func Encode(b []byte, enc encoding.Encoding) ([]byte, error) {
	if enc == nil {
		return b, nil
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), b)
	return out, err
}
