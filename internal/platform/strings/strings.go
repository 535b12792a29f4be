// Package strings provides string helpers shared across the pipeline:
// cell hygiene for tabular output, case folding for config lookups and
// guards for required names and route prefixes
package strings

import (
	std "strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// illegal is the set of C0 controls that spreadsheet and CSV consumers reject.
// Tab, newline and carriage return survive
var illegal = runes.Predicate(func(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r < 0x20 || r == 0x7F || (r >= 0x80 && r <= 0x9F)
})

var cleanPool = sync.Pool{
	New: func() any {
		return transform.Chain(runes.Remove(illegal), norm.NFC)
	},
}

var foldPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKD,
			runes.Remove(runes.In(unicode.Mn)),
			cases.Fold(),
		)
	},
}

// Clean strips control characters and NFC-normalizes s
// Invalid UTF-8 bytes are dropped
func Clean(s string) string {
	if s == "" || isPrintable(s) {
		return s
	}
	s = std.ToValidUTF8(s, "")
	tr := cleanPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	cleanPool.Put(tr)
	if err != nil {
		return s
	}
	return out
}

// isPrintable is the fast path for already-clean ASCII
func isPrintable(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 || c == 0x7F || (c < 0x20 && c != '\t' && c != '\n' && c != '\r') {
			return false
		}
	}
	return true
}

// FoldKey folds s for case and accent insensitive lookups ("Terça", "TERCA" -> "terca")
func FoldKey(s string) string {
	s = std.TrimSpace(s)
	if s == "" {
		return ""
	}
	tr := foldPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, s)
	tr.Reset()
	foldPool.Put(tr)
	if err != nil {
		return std.ToLower(s)
	}
	return out
}

// SafeName turns a display name into a file-name fragment: letters, digits,
// '.', '_' and '-' are kept, everything else becomes '_', capped at max runes
func SafeName(s string, max int) string {
	var b std.Builder
	n := 0
	for _, r := range FoldKey(s) {
		if max > 0 && n >= max {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

// IfEmpty returns def if in is empty, otherwise returns in
func IfEmpty[T any](in []T, def []T) []T {
	if len(in) == 0 {
		return def
	}
	return in
}

// MustString returns s if it has non whitespace content otherwise panics
// name is used in the panic message so you can tell what was missing
func MustString(s string, name string) string {
	if std.TrimSpace(s) == "" {
		panic(name + " is required")
	}
	return s
}

// MustPrefix normalizes and asserts a root path like /v1 or /reports
// ensures a single leading slash and no trailing slash except for the root itself
// panics if the input is empty after trimming
func MustPrefix(s string) string {
	s = std.TrimSpace(s)
	s = "/" + std.Trim(s, " /")
	if s == "/" {
		panic("root path is required")
	}
	return s
}
