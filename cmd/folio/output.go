package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/executor"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
)

// readBook loads a book source or a compiled pipeline. "-" reads stdin.
func readBook(path string) (*book.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if filepath.Ext(path) == ".json" || strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		return book.FromJSON(data)
	}
	return book.Compile(string(data))
}

// renderMarkdown writes md to w, styled for the terminal unless raw is set.
func renderMarkdown(w io.Writer, md string, raw bool) error {
	if raw {
		_, err := io.WriteString(w, md)
		return err
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := renderer.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func stateText(s executor.State) string {
	switch s {
	case executor.StateSucceeded:
		return color.GreenString(string(s))
	case executor.StateFailed:
		return color.RedString(string(s))
	case executor.StateCancelled:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

func printProgress(w io.Writer, p executor.Progress) {
	title := p.Entry.Title
	if title == "" {
		title = p.Entry.Template
	}
	line := fmt.Sprintf("[%d/%d] %s %s", p.Completed, p.Total, color.CyanString(title), stateText(p.Entry.State))
	if p.Entry.Attempts > 1 {
		line += fmt.Sprintf(" after %d attempts", p.Entry.Attempts)
	}
	if p.Entry.ErrorMessage != "" {
		line += ": " + p.Entry.ErrorMessage
	}
	fmt.Fprintln(w, line)
}

// resultMarkdown lists the output parameters of res as markdown sections.
func resultMarkdown(res *executor.Result) string {
	var b strings.Builder
	if res.OutputParameters != nil {
		for pair := res.OutputParameters.Oldest(); pair != nil; pair = pair.Next() {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", pair.Key, pair.Value)
		}
	}
	return b.String()
}

func errorText(err error) string {
	var perr *book.ParsingError
	if errors.As(err, &perr) {
		return color.RedString("syntax error: ") + perr.Error()
	}
	var lerr *book.PipelineLogicError
	if errors.As(err, &lerr) {
		return color.RedString("pipeline error: ") + lerr.Error()
	}
	return color.RedString("error: ") + err.Error()
}
