package book

import (
	"fmt"
	"strings"
)

// ParsingError reports malformed book syntax.
type ParsingError struct {
	Line    int
	Command string
	Message string
	Hint    string
}

func (e *ParsingError) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Command != "" {
		b.WriteString(e.Command)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

// PipelineLogicError reports a syntactically valid book whose pipeline cannot run.
type PipelineLogicError struct {
	Template  string
	Parameter string
	Message   string
}

func (e *PipelineLogicError) Error() string {
	var parts []string
	if e.Template != "" {
		parts = append(parts, "template "+e.Template)
	}
	if e.Parameter != "" {
		parts = append(parts, "parameter {"+e.Parameter+"}")
	}
	if len(parts) == 0 {
		return e.Message
	}
	return strings.Join(parts, ", ") + ": " + e.Message
}

func parseErr(line int, command, format string, args ...any) *ParsingError {
	return &ParsingError{Line: line, Command: command, Message: fmt.Sprintf(format, args...)}
}

// findSimilar returns the candidate that shares the longest prefix with target.
func findSimilar(target string, candidates []string) string {
	target = strings.ToLower(target)
	best := ""
	bestScore := 0

	for _, c := range candidates {
		score := similarity(target, strings.ToLower(c))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	return best
}

func similarity(a, b string) int {
	if a == b {
		return 100
	}

	score := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			break
		}
		score += 2
	}

	if strings.Contains(b, a) || strings.Contains(a, b) {
		score += 10
	}

	return score
}
