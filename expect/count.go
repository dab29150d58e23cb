package expect

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// LinesPerPage is the number of lines counted as one page.
const LinesPerPage = 44

var (
	sentenceEnd   = regexp.MustCompile(`[.!?]+(\s|$)`)
	paragraphSep  = regexp.MustCompile(`\n\s*\n`)
	lineSeparator = regexp.MustCompile(`\r?\n`)
)

// Count returns the number of units in text.
func Count(unit Unit, text string) int {
	switch unit {
	case Characters:
		return CountCharacters(text)
	case Words:
		return CountWords(text)
	case Sentences:
		return CountSentences(text)
	case Lines:
		return CountLines(text)
	case Paragraphs:
		return CountParagraphs(text)
	case Pages:
		return CountPages(text)
	default:
		return 0
	}
}

// CountCharacters counts runes, ignoring surrounding whitespace.
func CountCharacters(text string) int {
	return utf8.RuneCountInString(strings.TrimSpace(text))
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountSentences counts sentences terminated by ., ! or ?; trailing text without a
// terminator counts as one more sentence.
func CountSentences(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	locs := sentenceEnd.FindAllStringIndex(text, -1)
	n := len(locs)
	if n == 0 || locs[n-1][1] < len(text) {
		n++
	}
	return n
}

// CountLines counts lines of the trimmed text.
func CountLines(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return len(lineSeparator.Split(text, -1))
}

// CountParagraphs counts blocks separated by blank lines.
func CountParagraphs(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return len(paragraphSep.Split(text, -1))
}

// CountPages counts pages of LinesPerPage lines, rounding up.
func CountPages(text string) int {
	lines := CountLines(text)
	return int(math.Ceil(float64(lines) / LinesPerPage))
}
