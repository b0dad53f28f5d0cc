package markdown

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Section is a heading and the text beneath it.
type Section struct {
	// Number is the heading number ("4" for "## 4. Time Off"). Text before
	// the first heading has no number. Numbers are display metadata and are
	// not unique within a document.
	Number string
	Title  string
	Text   string
}

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	numberedPattern = regexp.MustCompile(`^(\d+(?:\.\d+)*)[.)]?\s+(.+)$`)
)

// SplitSections splits a markdown document at headings up to maxLevel.
// Deeper headings stay in the body of their parent. Unnumbered headings
// are numbered by position. Sections with no text are dropped.
func SplitSections(doc string, maxLevel int) []Section {
	if maxLevel <= 0 {
		maxLevel = 2
	}
	var (
		sections []Section
		current  Section
		body     []string
		ordinal  int
		inFence  bool
	)
	flush := func() {
		current.Text = strings.TrimSpace(strings.Join(body, "\n"))
		if current.Text != "" {
			sections = append(sections, current)
		}
		body = body[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingPattern.FindStringSubmatch(trimmed); m != nil && len(m[1]) <= maxLevel {
				flush()
				ordinal++
				current = Section{Number: strconv.Itoa(ordinal), Title: PlainText(m[2])}
				if n := numberedPattern.FindStringSubmatch(current.Title); n != nil {
					current.Number = n[1]
					current.Title = n[2]
				}
				continue
			}
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// Chunk splits text into pieces of at most maxChars, breaking at blank lines
// where possible. A single paragraph longer than maxChars is split hard.
func Chunk(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}
	var (
		chunks []string
		buf    strings.Builder
	)
	emit := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
	}
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+2+len(para) > maxChars {
			emit()
		}
		for len(para) > maxChars {
			emit()
			cut := runeCut(para, maxChars)
			chunks = append(chunks, para[:cut])
			para = para[cut:]
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
	}
	emit()
	return chunks
}

// runeCut returns the largest cut at or below limit that does not split a
// rune. At least one rune is always taken.
func runeCut(s string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		_, cut = utf8.DecodeRuneInString(s)
	}
	return cut
}
