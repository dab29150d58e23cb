package book

import (
	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/pkg/hashx"
	"github.com/casualjim/folio/types"
)

// TemplateKind says how a template is executed.
type TemplateKind string

const (
	// KindPrompt sends the content to a model.
	KindPrompt TemplateKind = "PROMPT"
	// KindSimple substitutes parameters without calling a model.
	KindSimple TemplateKind = "SIMPLE"
)

// ImplicitTemplateTitle is the title given to a content block outside any section.
const ImplicitTemplateTitle = "Prompt"

// Document is a compiled book.
type Document struct {
	Title                    string                  `json:"title,omitempty"`
	Description              string                  `json:"description,omitempty"`
	PipelineURL              string                  `json:"pipelineUrl,omitempty"`
	BookVersion              string                  `json:"bookVersion,omitempty"`
	Parameters               []Parameter             `json:"parameters,omitempty"`
	Templates                []Template              `json:"templates,omitempty"`
	Knowledge                []KnowledgeSource       `json:"knowledgeSources,omitempty"`
	DefaultModelRequirements types.ModelRequirements `json:"defaultModelRequirements"`
}

// Parameter is a declared pipeline parameter.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsInput     bool   `json:"isInput"`
	IsOutput    bool   `json:"isOutput"`
}

// Template is one step of the pipeline.
type Template struct {
	Name              string                  `json:"name"`
	Title             string                  `json:"title"`
	Description       string                  `json:"description,omitempty"`
	Kind              TemplateKind            `json:"kind"`
	Content           string                  `json:"content"`
	ContentLanguage   string                  `json:"contentLanguage,omitempty"`
	ModelRequirements types.ModelRequirements `json:"modelRequirements"`
	Expectations      *expect.Expectations    `json:"expectations,omitempty"`
	MaxAttempts       int                     `json:"maxAttempts,omitempty"`
	ResultParameter   string                  `json:"resultingParameterName"`
}

// Placeholders returns the parameters the template content refers to.
func (t *Template) Placeholders() []string {
	return types.Placeholders(t.Content)
}

// Attempts returns the number of tries allowed, at least one.
func (t *Template) Attempts() int {
	if t.MaxAttempts < 1 {
		return 1
	}
	return t.MaxAttempts
}

// KnowledgeSource is a piece of external knowledge named by its content.
type KnowledgeSource struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

// NewKnowledgeSource names source by its content hash.
func NewKnowledgeSource(source string) KnowledgeSource {
	return KnowledgeSource{Name: hashx.Name(hashx.Source{Text: source}), Source: source}
}

// Parameter returns the declared parameter with the given name.
func (d *Document) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Template returns the template with the given name.
func (d *Document) Template(name string) (*Template, bool) {
	for i := range d.Templates {
		if d.Templates[i].Name == name {
			return &d.Templates[i], true
		}
	}
	return nil, false
}

// InputParameters returns the names of the input parameters in declaration order.
func (d *Document) InputParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.IsInput {
			names = append(names, p.Name)
		}
	}
	return names
}

// OutputParameters returns the names of the output parameters in declaration order.
func (d *Document) OutputParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.IsOutput {
			names = append(names, p.Name)
		}
	}
	return names
}
