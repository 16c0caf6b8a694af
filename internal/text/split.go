package text

import (
	"strings"
	"unicode/utf8"
)

const ParagraphSep = "\n\n"

// Split breaks content on sep and greedily packs the parts back together
// so that no returned piece is longer than max runes. A part that alone
// exceeds max is hard-cut into max-sized pieces first. Concatenating the
// pieces with sep (modulo the hard cuts) yields content in order.
func Split(content, sep string, max int) []string {
	if content == "" {
		return nil
	}
	if max <= 0 || utf8.RuneCountInString(content) <= max {
		return []string{content}
	}

	sepLen := utf8.RuneCountInString(sep)
	var pieces []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, para := range strings.Split(content, sep) {
		for _, part := range cut(para, max) {
			partLen := utf8.RuneCountInString(part)
			if currentLen > 0 && currentLen+sepLen+partLen > max {
				flush()
			}
			if currentLen > 0 {
				current.WriteString(sep)
				currentLen += sepLen
			}
			current.WriteString(part)
			currentLen += partLen
		}
	}
	flush()

	return pieces
}

// cut splits s into runs of at most max runes.
func cut(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += max {
		end := min(start+max, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Ellipsize truncates s to n runes and appends "..." when anything was cut.
func Ellipsize(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}

func Len(s string) int {
	return utf8.RuneCountInString(s)
}
