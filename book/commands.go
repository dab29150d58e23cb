package book

import (
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/types"
	"golang.org/x/mod/semver"
)

var (
	resultPattern    = regexp.MustCompile("^`?\\s*->\\s*\\{([A-Za-z_][A-Za-z0-9_]*)\\}\\s*`?$")
	parameterPattern = regexp.MustCompile(`^\{([A-Za-z_][A-Za-z0-9_]*)\}$`)
)

type placement int

const (
	headOnly placement = iota
	sectionOnly
	anywhere
)

// command is a book command keyword. bare reports whether the words after the keyword make an
// unbulleted line a command.
type command struct {
	usage string
	where placement
	bare  func(args []string) bool
	apply func(p *parser, line int, args []string) error
}

var commands map[string]*command

func init() {
	commands = map[string]*command{
		"PIPELINE":  {usage: "PIPELINE URL <url>", where: headOnly, bare: second("URL"), apply: pipelineURL},
		"BOOK":      {usage: "BOOK VERSION <version>", where: headOnly, bare: second("VERSION"), apply: bookVersion},
		"INPUT":     {usage: "INPUT PARAMETER {name} <description>", where: headOnly, bare: second("PARAMETER"), apply: declare(true, false)},
		"OUTPUT":    {usage: "OUTPUT PARAMETER {name} <description>", where: headOnly, bare: second("PARAMETER"), apply: declare(false, true)},
		"PARAMETER": {usage: "PARAMETER {name} <description>", where: headOnly, bare: placeholderFirst, apply: declare(false, false)},
		"KNOWLEDGE": {usage: "KNOWLEDGE <source>", where: headOnly, bare: nonEmpty, apply: knowledge},
		"MODEL":     {usage: "MODEL VARIANT|NAME|TEMPERATURE|SYSTEM <value>", where: anywhere, bare: second("VARIANT", "NAME", "TEMPERATURE", "SYSTEM"), apply: model},
		"EXPECT":    {usage: "EXPECT MIN|MAX|EXACTLY <n> <unit>", where: sectionOnly, bare: second("MIN", "MAX", "EXACTLY", "JSON"), apply: expectation},
		"FORMAT":    {usage: "FORMAT JSON", where: sectionOnly, bare: second("JSON"), apply: format},
		"MAX":       {usage: "MAX ATTEMPTS <n>", where: sectionOnly, bare: second("ATTEMPTS"), apply: maxAttempts},
		"SIMPLE":    {usage: "SIMPLE TEMPLATE", where: sectionOnly, bare: second("TEMPLATE"), apply: kind(KindSimple)},
		"PROMPT":    {usage: "PROMPT TEMPLATE", where: sectionOnly, bare: second("TEMPLATE"), apply: kind(KindPrompt)},
	}
	for keyword, cmd := range commands {
		apply := cmd.apply
		cmd.apply = checkPlacement(keyword, cmd.where, apply)
	}
}

func commandKeywords() []string {
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func second(words ...string) func([]string) bool {
	return func(args []string) bool {
		return len(args) > 0 && slices.Contains(words, strings.ToUpper(args[0]))
	}
}

func placeholderFirst(args []string) bool {
	return len(args) > 0 && parameterPattern.MatchString(args[0])
}

func nonEmpty(args []string) bool {
	return len(args) > 0
}

func checkPlacement(keyword string, where placement, apply func(*parser, int, []string) error) func(*parser, int, []string) error {
	return func(p *parser, line int, args []string) error {
		switch {
		case where == headOnly && p.current != nil:
			return parseErr(line, keyword, "must be in the head of the book, before any template")
		case where == sectionOnly && p.current == nil:
			return parseErr(line, keyword, "must be inside a template section")
		}
		return apply(p, line, args)
	}
}

func expectWord(line int, keyword string, args []string, word string) ([]string, error) {
	if len(args) == 0 || args[0] != word {
		return nil, parseErr(line, keyword, "expected %s %s", keyword, word)
	}
	return args[1:], nil
}

func pipelineURL(p *parser, line int, args []string) error {
	args, err := expectWord(line, "PIPELINE", args, "URL")
	if err != nil {
		return err
	}
	if p.doc.PipelineURL != "" {
		return parseErr(line, "PIPELINE URL", "pipeline url is already set")
	}
	if len(args) != 1 {
		return parseErr(line, "PIPELINE URL", "expected a single url")
	}
	u, perr := url.Parse(args[0])
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return parseErr(line, "PIPELINE URL", "invalid url %q", args[0])
	}
	p.doc.PipelineURL = args[0]
	return nil
}

func bookVersion(p *parser, line int, args []string) error {
	args, err := expectWord(line, "BOOK", args, "VERSION")
	if err != nil {
		return err
	}
	if p.doc.BookVersion != "" {
		return parseErr(line, "BOOK VERSION", "book version is already set")
	}
	if len(args) != 1 || !semver.IsValid("v"+strings.TrimPrefix(args[0], "v")) {
		return parseErr(line, "BOOK VERSION", "invalid version %q", strings.Join(args, " "))
	}
	p.doc.BookVersion = args[0]
	return nil
}

func declare(input, output bool) func(*parser, int, []string) error {
	return func(p *parser, line int, args []string) error {
		name := "PARAMETER"
		if input || output {
			keyword := "INPUT"
			if output {
				keyword = "OUTPUT"
			}
			var err error
			if args, err = expectWord(line, keyword, args, "PARAMETER"); err != nil {
				return err
			}
			name = keyword + " PARAMETER"
		}
		if len(args) == 0 {
			return parseErr(line, name, "expected a parameter like {name}")
		}
		m := parameterPattern.FindStringSubmatch(args[0])
		if m == nil {
			return parseErr(line, name, "invalid parameter %q, expected {name}", args[0])
		}
		if _, exists := p.doc.Parameter(m[1]); exists {
			return parseErr(line, name, "parameter {%s} is declared more than once", m[1])
		}
		p.doc.Parameters = append(p.doc.Parameters, Parameter{
			Name:        m[1],
			Description: strings.Join(args[1:], " "),
			IsInput:     input,
			IsOutput:    output,
		})
		return nil
	}
}

func knowledge(p *parser, line int, args []string) error {
	if len(args) == 0 {
		return parseErr(line, "KNOWLEDGE", "expected a source")
	}
	p.doc.Knowledge = append(p.doc.Knowledge, NewKnowledgeSource(strings.Join(args, " ")))
	return nil
}

func model(p *parser, line int, args []string) error {
	if len(args) < 2 {
		return parseErr(line, "MODEL", "expected MODEL <key> <value>")
	}
	target := &p.doc.DefaultModelRequirements
	if p.current != nil {
		target = &p.current.template.ModelRequirements
	}

	key, value := strings.ToUpper(args[0]), strings.Join(args[1:], " ")
	switch key {
	case "VARIANT":
		v, err := types.ParseVariant(value)
		if err != nil {
			return parseErr(line, "MODEL VARIANT", "%v", err)
		}
		target.Variant = v
	case "NAME":
		target.ModelName = value
	case "TEMPERATURE":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil || t < 0 || t > 2 {
			return parseErr(line, "MODEL TEMPERATURE", "invalid temperature %q, expected a number between 0 and 2", value)
		}
		target.Temperature = &t
	case "SYSTEM":
		target.SystemMessage = value
	default:
		err := parseErr(line, "MODEL", "unknown model requirement %q", args[0])
		if similar := findSimilar(key, []string{"VARIANT", "NAME", "TEMPERATURE", "SYSTEM"}); similar != "" {
			err.Hint = "did you mean MODEL " + similar + "?"
		}
		return err
	}
	return nil
}

func expectation(p *parser, line int, args []string) error {
	if len(args) == 1 && strings.EqualFold(args[0], string(expect.FormatJSON)) {
		setFormat(p)
		return nil
	}
	if len(args) != 3 {
		return parseErr(line, "EXPECT", "expected EXPECT MIN|MAX|EXACTLY <n> <unit>")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return parseErr(line, "EXPECT", "invalid number %q", args[1])
	}
	unit, err := expect.ParseUnit(args[2])
	if err != nil {
		return parseErr(line, "EXPECT", "%v", err)
	}

	t := &p.current.template
	if t.Expectations == nil {
		t.Expectations = &expect.Expectations{}
	}
	switch strings.ToUpper(args[0]) {
	case "MIN":
		t.Expectations.SetMin(unit, n)
	case "MAX":
		t.Expectations.SetMax(unit, n)
	case "EXACTLY":
		t.Expectations.SetMin(unit, n)
		t.Expectations.SetMax(unit, n)
	default:
		return parseErr(line, "EXPECT", "unknown bound %q, expected MIN, MAX or EXACTLY", args[0])
	}
	return nil
}

func format(p *parser, line int, args []string) error {
	if len(args) != 1 || strings.ToUpper(args[0]) != string(expect.FormatJSON) {
		return parseErr(line, "FORMAT", "unsupported format %q", strings.Join(args, " "))
	}
	setFormat(p)
	return nil
}

func setFormat(p *parser) {
	t := &p.current.template
	if t.Expectations == nil {
		t.Expectations = &expect.Expectations{}
	}
	t.Expectations.Format = expect.FormatJSON
}

func maxAttempts(p *parser, line int, args []string) error {
	args, err := expectWord(line, "MAX", args, "ATTEMPTS")
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return parseErr(line, "MAX ATTEMPTS", "expected a single number")
	}
	n, perr := strconv.Atoi(args[0])
	if perr != nil || n < 1 {
		return parseErr(line, "MAX ATTEMPTS", "invalid number %q, expected a positive integer", args[0])
	}
	p.current.template.MaxAttempts = n
	return nil
}

func kind(k TemplateKind) func(*parser, int, []string) error {
	return func(p *parser, line int, args []string) error {
		if _, err := expectWord(line, string(k), args, "TEMPLATE"); err != nil {
			return err
		}
		p.current.template.Kind = k
		return nil
	}
}
