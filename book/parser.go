package book

import (
	"bufio"
	"strings"

	"github.com/casualjim/folio/pkg/hashx"
)

// Compile parses book source into a Document. It fails with a *ParsingError on malformed syntax.
func Compile(text string) (*Document, error) {
	p := &parser{doc: &Document{}, templateNames: make(map[string]struct{})}
	if err := p.run(text); err != nil {
		return nil, err
	}
	return p.doc, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Document {
	doc, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return doc
}

type section struct {
	template    Template
	line        int
	description []string
	blocks      int
	hasResult   bool
}

type fence struct {
	marker string
	line   int
	lines  []string
}

type parser struct {
	doc           *Document
	description   []string
	current       *section
	fence         *fence
	templateNames map[string]struct{}
}

func (p *parser) run(text string) error {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := p.line(lineNo, strings.TrimSuffix(scanner.Text(), "\r")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return parseErr(lineNo, "", "reading source: %v", err)
	}

	if p.fence != nil {
		return parseErr(p.fence.line, "", "unclosed code block %s", p.fence.marker)
	}
	if err := p.closeSection(); err != nil {
		return err
	}
	p.doc.Description = joinText(p.description)
	return nil
}

func (p *parser) line(lineNo int, raw string) error {
	trimmed := strings.TrimSpace(raw)

	if p.fence != nil {
		if trimmed == p.fence.marker {
			return p.closeFence()
		}
		p.fence.lines = append(p.fence.lines, raw)
		return nil
	}

	switch {
	case strings.HasPrefix(trimmed, "```"):
		return p.openFence(lineNo, trimmed)
	case strings.HasPrefix(trimmed, "# "):
		return p.title(lineNo, strings.TrimSpace(trimmed[2:]))
	case strings.HasPrefix(trimmed, "## "):
		return p.openSection(lineNo, strings.TrimSpace(trimmed[3:]))
	}

	if name, ok := resultParameter(trimmed); ok {
		return p.result(lineNo, name)
	}

	if cmd, args, ok, err := p.command(lineNo, trimmed); err != nil {
		return err
	} else if ok {
		return cmd.apply(p, lineNo, args)
	}

	if p.current != nil {
		p.current.description = append(p.current.description, raw)
	} else {
		p.description = append(p.description, raw)
	}
	return nil
}

func (p *parser) title(lineNo int, title string) error {
	if p.current != nil {
		return parseErr(lineNo, "", "the title must come before the first template")
	}
	if p.doc.Title != "" {
		return parseErr(lineNo, "", "the book has more than one title")
	}
	p.doc.Title = title
	return nil
}

func (p *parser) openSection(lineNo int, title string) error {
	if err := p.closeSection(); err != nil {
		return err
	}
	name := hashx.Slug(title)
	if name == "" {
		return parseErr(lineNo, "", "template title %q does not produce a name", title)
	}
	if _, exists := p.templateNames[name]; exists {
		return parseErr(lineNo, "", "duplicate template name %q", name)
	}
	p.templateNames[name] = struct{}{}
	p.current = &section{
		line:     lineNo,
		template: Template{Name: name, Title: title, Kind: KindPrompt},
	}
	return nil
}

func (p *parser) closeSection() error {
	s := p.current
	if s == nil {
		return nil
	}
	p.current = nil
	if s.blocks == 0 {
		return parseErr(s.line, "", "template %q has no content block", s.template.Name)
	}
	s.template.Description = joinText(s.description)
	p.doc.Templates = append(p.doc.Templates, s.template)
	return nil
}

func (p *parser) openFence(lineNo int, trimmed string) error {
	n := 0
	for n < len(trimmed) && trimmed[n] == '`' {
		n++
	}
	lang := strings.TrimSpace(trimmed[n:])
	if strings.Contains(lang, "`") {
		return parseErr(lineNo, "", "malformed code block opening %q", trimmed)
	}

	if p.current == nil {
		if err := p.openSection(lineNo, ImplicitTemplateTitle); err != nil {
			return err
		}
	}
	if p.current.blocks > 0 {
		return parseErr(lineNo, "", "template %q has more than one content block", p.current.template.Name)
	}
	p.current.blocks++
	p.current.template.ContentLanguage = lang
	p.fence = &fence{marker: trimmed[:n], line: lineNo}
	return nil
}

func (p *parser) closeFence() error {
	p.current.template.Content = strings.Join(p.fence.lines, "\n")
	p.fence = nil
	return nil
}

func (p *parser) result(lineNo int, name string) error {
	if p.current == nil {
		return parseErr(lineNo, "->", "a result parameter must belong to a template")
	}
	if p.current.hasResult {
		return parseErr(lineNo, "->", "template %q already has a result parameter", p.current.template.Name)
	}
	p.current.hasResult = true
	p.current.template.ResultParameter = name
	if _, declared := p.doc.Parameter(name); !declared {
		p.doc.Parameters = append(p.doc.Parameters, Parameter{Name: name})
	}
	return nil
}

// command recognizes bullet commands and bare lines that start with a known command keyword.
func (p *parser) command(lineNo int, trimmed string) (*command, []string, bool, error) {
	rest, bullet := strings.CutPrefix(trimmed, "- ")
	if !bullet {
		rest, bullet = strings.CutPrefix(trimmed, "* ")
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, nil, false, nil
	}

	keyword := fields[0]
	cmd, known := commands[keyword]
	switch {
	case known && (bullet || cmd.bare(fields[1:])):
		return cmd, fields[1:], true, nil
	case bullet && isCommandWord(keyword):
		err := parseErr(lineNo, keyword, "unknown command")
		if similar := findSimilar(keyword, commandKeywords()); similar != "" {
			err.Hint = "did you mean " + commands[similar].usage + "?"
		}
		return nil, nil, false, err
	default:
		return nil, nil, false, nil
	}
}

func isCommandWord(s string) bool {
	if len(s) < 2 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && r != '_' {
			return false
		}
	}
	return true
}

func resultParameter(trimmed string) (string, bool) {
	m := resultPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func joinText(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
