package book

import (
	"errors"
	"fmt"

	"github.com/casualjim/folio/expect"
	"github.com/casualjim/folio/types"
)

// Validate checks the pipeline logic of a compiled document. Every problem found is reported as
// a *PipelineLogicError, joined together.
func Validate(doc *Document) error {
	var errs []error

	producers := make(map[string]string)
	for _, t := range doc.Templates {
		if err := expect.Validate(t.Expectations); err != nil {
			errs = append(errs, &PipelineLogicError{Template: t.Name, Message: err.Error()})
		}

		if t.ResultParameter == "" {
			continue
		}
		param, declared := doc.Parameter(t.ResultParameter)
		switch {
		case !declared:
			errs = append(errs, &PipelineLogicError{Template: t.Name, Parameter: t.ResultParameter, Message: "result parameter is not declared"})
		case param.IsInput:
			errs = append(errs, &PipelineLogicError{Template: t.Name, Parameter: t.ResultParameter, Message: "an input parameter cannot be produced by a template"})
		}
		if other, exists := producers[t.ResultParameter]; exists {
			errs = append(errs, &PipelineLogicError{
				Template:  t.Name,
				Parameter: t.ResultParameter,
				Message:   fmt.Sprintf("parameter is already produced by template %s", other),
			})
			continue
		}
		producers[t.ResultParameter] = t.Name
	}

	for _, t := range doc.Templates {
		for _, name := range t.Placeholders() {
			if name == types.ReservedKnowledge {
				continue
			}
			param, declared := doc.Parameter(name)
			if !declared {
				errs = append(errs, &PipelineLogicError{Template: t.Name, Parameter: name, Message: "parameter is used but not declared"})
				continue
			}
			if _, produced := producers[name]; !produced && !param.IsInput {
				errs = append(errs, &PipelineLogicError{Template: t.Name, Parameter: name, Message: "parameter is not an input and no template produces it"})
			}
		}
	}

	for _, p := range doc.Parameters {
		if p.Name == types.ReservedKnowledge {
			errs = append(errs, &PipelineLogicError{Parameter: p.Name, Message: "parameter name is reserved"})
		}
		if _, produced := producers[p.Name]; p.IsOutput && !produced {
			errs = append(errs, &PipelineLogicError{Parameter: p.Name, Message: "output parameter is never produced"})
		}
	}

	if len(errs) == 0 {
		if _, err := DependencyGraph(doc); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
