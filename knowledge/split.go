package knowledge

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxPieceChars is the size limit of a piece when none is configured.
const DefaultMaxPieceChars = 1000

// Chunk is a titled fragment of a source before it becomes a piece.
type Chunk struct {
	Title   string
	Content string
}

var (
	blankLines = regexp.MustCompile(`\n[ \t]*\n`)
	heading    = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*\s*$`)
)

// Split packs the paragraphs of text into chunks of at most maxChars characters.
// A markdown heading closes the current chunk and titles the ones that follow.
// Paragraphs longer than maxChars are cut at word boundaries.
func Split(text string, maxChars int) []Chunk {
	if maxChars <= 0 {
		maxChars = DefaultMaxPieceChars
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		chunks []Chunk
		title  string
		buf    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, Chunk{Title: title, Content: s})
		}
		buf.Reset()
	}
	add := func(p string) {
		if buf.Len() > 0 && utf8.RuneCountInString(buf.String())+2+utf8.RuneCountInString(p) > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}

	for _, block := range blankLines.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		first, rest, _ := strings.Cut(block, "\n")
		if m := heading.FindStringSubmatch(first); m != nil {
			flush()
			title = m[1]
			block = strings.TrimSpace(rest)
			if block == "" {
				continue
			}
		}
		for _, p := range cut(block, maxChars) {
			add(p)
		}
	}
	flush()
	return chunks
}

// cut splits s into parts of at most n characters, preferring word boundaries.
func cut(s string, n int) []string {
	if utf8.RuneCountInString(s) <= n {
		return []string{s}
	}
	var (
		parts []string
		cur   strings.Builder
		size  int
	)
	for _, w := range strings.Fields(s) {
		wl := utf8.RuneCountInString(w)
		for wl > n {
			if size > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				size = 0
			}
			runes := []rune(w)
			parts = append(parts, string(runes[:n]))
			w = string(runes[n:])
			wl -= n
		}
		if size > 0 && size+1+wl > n {
			parts = append(parts, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteByte(' ')
			size++
		}
		cur.WriteString(w)
		size += wl
	}
	if size > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
