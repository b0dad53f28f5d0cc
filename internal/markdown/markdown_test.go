package markdown

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseInline(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []Span
	}{
		{name: "empty", input: "", want: nil},
		{name: "plain", input: "hello", want: []Span{{Text: "hello"}}},
		{
			name:  "styles",
			input: "a **bold** and *ital* and `code`",
			want: []Span{
				{Text: "a "},
				{Text: "bold", Style: Bold},
				{Text: " and "},
				{Text: "ital", Style: Italic},
				{Text: " and "},
				{Text: "code", Style: Code},
			},
		},
		{name: "escapes", input: `\*not italic\*`, want: []Span{{Text: "*not italic*"}}},
		{name: "unclosed", input: "**bold *oops", want: []Span{{Text: "**bold *oops"}}},
		{name: "stars in code", input: "`a*b*`", want: []Span{{Text: "a*b*", Style: Code}}},
		{
			name:  "nested",
			input: "**x *y***",
			want: []Span{
				{Text: "x ", Style: Bold},
				{Text: "y", Style: Bold | Italic},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, ParseInline(tc.input)); diff != "" {
				t.Fatalf("spans mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("**4. Time Off** and `pto`"); got != "4. Time Off and pto" {
		t.Fatalf("unexpected plain text %q", got)
	}
}
