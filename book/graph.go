package book

import (
	"errors"
	"fmt"
	"slices"

	"github.com/casualjim/folio/types"
	"github.com/dominikbraun/graph"
)

// Producers maps each result parameter to the template that produces it.
// When more than one template produces a parameter the first one wins.
func Producers(doc *Document) map[string]string {
	producers := make(map[string]string, len(doc.Templates))
	for _, t := range doc.Templates {
		if t.ResultParameter == "" {
			continue
		}
		if _, exists := producers[t.ResultParameter]; !exists {
			producers[t.ResultParameter] = t.Name
		}
	}
	return producers
}

// Dependencies returns, per template name, the templates whose results it consumes,
// in the order their parameters first appear.
func Dependencies(doc *Document) map[string][]string {
	producers := Producers(doc)
	deps := make(map[string][]string, len(doc.Templates))
	for _, t := range doc.Templates {
		var names []string
		for _, param := range t.Placeholders() {
			if param == types.ReservedKnowledge {
				continue
			}
			producer, ok := producers[param]
			if !ok || slices.Contains(names, producer) {
				continue
			}
			names = append(names, producer)
		}
		deps[t.Name] = names
	}
	return deps
}

// DependencyGraph builds the directed graph of templates, with an edge from each producer to its
// consumers. A cycle fails with a *PipelineLogicError.
func DependencyGraph(doc *Document) (graph.Graph[string, string], error) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, t := range doc.Templates {
		if err := g.AddVertex(t.Name); err != nil {
			return nil, fmt.Errorf("failed to add template %s: %w", t.Name, err)
		}
	}

	deps := Dependencies(doc)
	for _, t := range doc.Templates {
		for _, dep := range deps[t.Name] {
			if dep == t.Name {
				return nil, &PipelineLogicError{Template: t.Name, Message: "template depends on its own result"}
			}
			err := g.AddEdge(dep, t.Name)
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, &PipelineLogicError{
					Template: t.Name,
					Message:  fmt.Sprintf("depending on template %s creates a cycle", dep),
				}
			default:
				return nil, fmt.Errorf("failed to link %s to %s: %w", dep, t.Name, err)
			}
		}
	}
	return g, nil
}

// ExecutionOrder returns template names in an order where every template follows its dependencies.
// Ties keep declaration order.
func ExecutionOrder(doc *Document) ([]string, error) {
	g, err := DependencyGraph(doc)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(doc.Templates))
	for i, t := range doc.Templates {
		index[t.Name] = i
	}
	return graph.StableTopologicalSort(g, func(a, b string) bool { return index[a] < index[b] })
}
