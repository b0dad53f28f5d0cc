// Package markdown splits documents into numbered sections and strips inline
// markup.
package markdown

import "strings"

// Style is a bit set of inline emphasis.
type Style uint8

const (
	Bold Style = 1 << iota
	Italic
	Code
)

// Span is a run of text sharing one style.
type Span struct {
	Text  string
	Style Style
}

type marker struct {
	token string
	style Style
}

// Longer tokens first so ** wins over *.
var markers = []marker{
	{token: "`", style: Code},
	{token: "**", style: Bold},
	{token: "*", style: Italic},
}

// ParseInline splits input into styled spans. It understands **bold**,
// *italic*, `code` and backslash escapes. Markers without a closing partner
// are kept as literal text.
func ParseInline(input string) []Span {
	var (
		spans []Span
		text  strings.Builder
		style Style
	)
	emit := func() {
		if text.Len() > 0 {
			spans = append(spans, Span{Text: text.String(), Style: style})
			text.Reset()
		}
	}

	for i := 0; i < len(input); {
		if input[i] == '\\' && i+1 < len(input) {
			text.WriteByte(input[i+1])
			i += 2
			continue
		}
		m, ok := markerAt(input[i:], style)
		if !ok {
			text.WriteByte(input[i])
			i++
			continue
		}
		rest := input[i+len(m.token):]
		switch {
		case style&m.style != 0:
			emit()
			style &^= m.style
		case rest != "" && strings.Contains(rest, m.token):
			emit()
			style |= m.style
		default:
			text.WriteString(m.token)
		}
		i += len(m.token)
	}
	emit()
	return spans
}

// markerAt reports the marker starting s. Inside code only the closing
// backtick counts.
func markerAt(s string, style Style) (marker, bool) {
	for _, m := range markers {
		if style&Code != 0 && m.style != Code {
			continue
		}
		if strings.HasPrefix(s, m.token) {
			return m, true
		}
	}
	return marker{}, false
}

// PlainText returns input with inline markers removed.
func PlainText(input string) string {
	var b strings.Builder
	for _, span := range ParseInline(input) {
		b.WriteString(span.Text)
	}
	return b.String()
}
