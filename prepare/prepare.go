// Package prepare turns a compiled book into templates ready for execution.
//
// Preparation validates the pipeline logic, merges every template's model
// requirements with the book defaults, resolves which templates feed which, and
// attaches prepared knowledge to the templates that ask for it. Templates keep
// their declaration order.
package prepare

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/knowledge"
	"github.com/casualjim/folio/types"
)

// PreparedTemplate is a template with everything the executor needs resolved.
type PreparedTemplate struct {
	book.Template

	// Index is the position of the template in declaration order.
	Index int `json:"index"`
	// Dependencies names the templates whose results this template consumes.
	Dependencies []string `json:"dependencies,omitempty"`
	// Parameters names every parameter the content refers to.
	Parameters []string `json:"parameters,omitempty"`
	// Knowledge is the text substituted for {knowledge}, empty when the template does not use it.
	Knowledge string `json:"knowledge,omitempty"`
}

// UsesKnowledge reports whether the template content refers to {knowledge}.
func (t *PreparedTemplate) UsesKnowledge() bool {
	for _, p := range t.Parameters {
		if p == types.ReservedKnowledge {
			return true
		}
	}
	return false
}

// Pipeline is a prepared book.
type Pipeline struct {
	Document  *book.Document     `json:"document"`
	Templates []PreparedTemplate `json:"templates"`
	Pieces    []knowledge.Piece  `json:"pieces,omitempty"`
}

// Template returns the prepared template with the given name.
func (p *Pipeline) Template(name string) (*PreparedTemplate, bool) {
	for i := range p.Templates {
		if p.Templates[i].Name == name {
			return &p.Templates[i], true
		}
	}
	return nil, false
}

// PrepareTemplates validates doc and prepares its templates in declaration order.
// Pieces become the knowledge of templates that refer to {knowledge}.
func PrepareTemplates(doc *book.Document, pieces []knowledge.Piece) ([]PreparedTemplate, error) {
	if err := book.Validate(doc); err != nil {
		return nil, err
	}

	deps := book.Dependencies(doc)
	text := KnowledgeText(pieces)

	prepared := make([]PreparedTemplate, len(doc.Templates))
	for i, t := range doc.Templates {
		t.ModelRequirements = t.ModelRequirements.Merge(doc.DefaultModelRequirements)
		pt := PreparedTemplate{
			Template:     t,
			Index:        i,
			Dependencies: deps[t.Name],
			Parameters:   t.Placeholders(),
		}
		if pt.UsesKnowledge() {
			pt.Knowledge = text
		}
		prepared[i] = pt
	}
	return prepared, nil
}

// Options configure Prepare.
type Options struct {
	// Preparer prepares the knowledge sources of the book. Without one the book's
	// knowledge is prepared with a private cache.
	Preparer *knowledge.Preparer
	// Knowledge tunes knowledge preparation.
	Knowledge knowledge.Options
}

// Prepare validates doc, prepares its knowledge sources and its templates.
func Prepare(ctx context.Context, doc *book.Document, o Options) (*Pipeline, error) {
	if err := book.Validate(doc); err != nil {
		return nil, err
	}

	var pieces []knowledge.Piece
	if len(doc.Knowledge) > 0 {
		preparer := o.Preparer
		if preparer == nil {
			preparer = knowledge.NewPreparer()
		}
		var err error
		pieces, err = preparer.Prepare(ctx, doc.Knowledge, o.Knowledge)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare knowledge: %w", err)
		}
	}

	templates, err := PrepareTemplates(doc, pieces)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Document: doc, Templates: templates, Pieces: pieces}, nil
}

// KnowledgeText renders pieces as the text substituted for {knowledge}.
func KnowledgeText(pieces []knowledge.Piece) string {
	var b strings.Builder
	for i, p := range pieces {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if p.Title != "" {
			b.WriteString("## ")
			b.WriteString(p.Title)
			b.WriteString("\n\n")
		}
		b.WriteString(p.Content)
	}
	return b.String()
}
