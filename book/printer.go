package book

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/types"
)

// Print renders doc as book source. Compiling the output yields a document equal to doc.
func Print(doc *Document) string {
	var b strings.Builder

	if doc.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	}
	if doc.Description != "" {
		b.WriteString(doc.Description)
		b.WriteString("\n\n")
	}

	var head []string
	if doc.PipelineURL != "" {
		head = append(head, "PIPELINE URL "+doc.PipelineURL)
	}
	if doc.BookVersion != "" {
		head = append(head, "BOOK VERSION "+doc.BookVersion)
	}
	for _, p := range doc.Parameters {
		head = append(head, parameterLine(p))
	}
	for _, k := range doc.Knowledge {
		head = append(head, "KNOWLEDGE "+k.Source)
	}
	head = append(head, modelLines(doc.DefaultModelRequirements)...)
	writeCommands(&b, head)

	for i := range doc.Templates {
		printTemplate(&b, &doc.Templates[i])
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func printTemplate(b *strings.Builder, t *Template) {
	fmt.Fprintf(b, "## %s\n\n", t.Title)
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n\n")
	}

	var cmds []string
	if t.Kind == KindSimple {
		cmds = append(cmds, "SIMPLE TEMPLATE")
	}
	cmds = append(cmds, modelLines(t.ModelRequirements)...)
	cmds = append(cmds, expectationLines(t.Expectations)...)
	if t.MaxAttempts > 0 {
		cmds = append(cmds, "MAX ATTEMPTS "+strconv.Itoa(t.MaxAttempts))
	}
	writeCommands(b, cmds)

	marker := fenceFor(t.Content)
	b.WriteString(marker)
	b.WriteString(t.ContentLanguage)
	b.WriteString("\n")
	if t.Content != "" {
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString(marker)
	b.WriteString("\n\n")

	if t.ResultParameter != "" {
		fmt.Fprintf(b, "`-> {%s}`\n\n", t.ResultParameter)
	}
}

func writeCommands(b *strings.Builder, cmds []string) {
	if len(cmds) == 0 {
		return
	}
	for _, c := range cmds {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

func parameterLine(p Parameter) string {
	var line string
	switch {
	case p.IsInput:
		line = "INPUT PARAMETER {" + p.Name + "}"
	case p.IsOutput:
		line = "OUTPUT PARAMETER {" + p.Name + "}"
	default:
		line = "PARAMETER {" + p.Name + "}"
	}
	if p.Description != "" {
		line += " " + p.Description
	}
	return line
}

func modelLines(m types.ModelRequirements) []string {
	var lines []string
	if m.Variant != "" {
		lines = append(lines, "MODEL VARIANT "+string(m.Variant))
	}
	if m.ModelName != "" {
		lines = append(lines, "MODEL NAME "+m.ModelName)
	}
	if m.Temperature != nil {
		lines = append(lines, "MODEL TEMPERATURE "+strconv.FormatFloat(*m.Temperature, 'f', -1, 64))
	}
	if m.SystemMessage != "" {
		lines = append(lines, "MODEL SYSTEM "+m.SystemMessage)
	}
	return lines
}

func expectationLines(e *expect.Expectations) []string {
	if e == nil {
		return nil
	}
	var lines []string
	for _, unit := range expect.Units {
		r, ok := e.Counts[unit]
		if !ok {
			continue
		}
		switch {
		case r.Min != nil && r.Max != nil && *r.Min == *r.Max:
			lines = append(lines, fmt.Sprintf("EXPECT EXACTLY %d %s", *r.Min, unit))
		default:
			if r.Min != nil {
				lines = append(lines, fmt.Sprintf("EXPECT MIN %d %s", *r.Min, unit))
			}
			if r.Max != nil {
				lines = append(lines, fmt.Sprintf("EXPECT MAX %d %s", *r.Max, unit))
			}
		}
	}
	if e.Format != "" {
		lines = append(lines, "FORMAT "+string(e.Format))
	}
	return lines
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}
