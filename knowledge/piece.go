// Package knowledge turns knowledge sources into named, deduplicated pieces.
//
// A source is fetched, split into paragraph sized pieces and every piece is named by
// the hash of its content. Pieces live in a Cache shared between preparations: running
// a preparation again over unchanged content appends the new preparation id to the
// cached pieces instead of creating new ones.
//
// One source produces many pieces. A piece always belongs to exactly one source, the
// first one that produced it.
package knowledge

import (
	"slices"

	"github.com/casualjim/folio/pkg/hashx"
)

// Piece is one addressable fragment of a knowledge source.
type Piece struct {
	Name           string    `json:"name"`
	Title          string    `json:"title,omitempty"`
	Content        string    `json:"content"`
	SourceName     string    `json:"sourceName"`
	PreparationIDs []string  `json:"preparationIds"`
	Embedding      []float64 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`
}

// PieceName returns the deterministic name of a piece with the given content. It
// carries the full content digest, so distinct contents never share a cache entry.
func PieceName(content string) string {
	return hashx.ContentName(content)
}

func (p Piece) clone() Piece {
	p.PreparationIDs = slices.Clone(p.PreparationIDs)
	p.Embedding = slices.Clone(p.Embedding)
	return p
}
