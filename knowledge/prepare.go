package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/pkg/hashx"
	"github.com/casualjim/folio/pkg/runstate"
	"github.com/casualjim/folio/pkg/slogx"
	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/types"
	"github.com/fogfish/opts"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxParallel is the number of sources prepared at the same time when none is configured.
const DefaultMaxParallel = 4

// Options tune a single preparation.
type Options struct {
	// PreparationID identifies the run; a new v7 uuid is used when empty.
	PreparationID string
	// MaxParallel bounds the number of sources fetched and split at the same time.
	MaxParallel int
	// MaxPieceChars bounds the size of a piece.
	MaxPieceChars int
	// SkipInvalidSources logs and skips sources that cannot be fetched instead of
	// failing the preparation.
	SkipInvalidSources bool
	// EmbeddingModel enables embeddings when the preparer has execution tools.
	EmbeddingModel string
}

// DefaultOptions returns the options used for a zero Options value.
func DefaultOptions() Options {
	return Options{
		MaxParallel:   DefaultMaxParallel,
		MaxPieceChars: DefaultMaxPieceChars,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxParallel <= 0 {
		o.MaxParallel = d.MaxParallel
	}
	if o.MaxPieceChars <= 0 {
		o.MaxPieceChars = d.MaxPieceChars
	}
	if o.PreparationID == "" {
		o.PreparationID = uuidx.NewString()
	}
	return o
}

// Preparer fetches knowledge sources and stores their pieces in a Cache.
type Preparer struct {
	cache   *Cache
	fetcher Fetcher
	tools   provider.ExecutionTools
	usage   *runstate.Aggregator
	logger  *slog.Logger
}

var (
	WithCache   = opts.ForName[Preparer, *Cache]("cache")
	WithFetcher = opts.ForName[Preparer, Fetcher]("fetcher")
	WithTools   = opts.ForName[Preparer, provider.ExecutionTools]("tools")
)

// NewPreparer creates a preparer. Without options it uses a private cache and the
// DefaultFetcher rooted at the working directory.
func NewPreparer(options ...opts.Option[Preparer]) *Preparer {
	p := &Preparer{
		usage:  runstate.NewAggregator(),
		logger: slogx.Component("knowledge"),
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	if p.cache == nil {
		p.cache = NewCache()
	}
	if p.fetcher == nil {
		p.fetcher = &DefaultFetcher{}
	}
	return p
}

// Cache returns the cache the preparer writes to.
func (p *Preparer) Cache() *Cache { return p.cache }

// Usage returns the usage of the embedding calls made so far.
func (p *Preparer) Usage() runstate.Usage { return p.usage.Usage() }

// Prepare turns every source into pieces, in source order. A source that cannot be
// fetched fails the whole call unless SkipInvalidSources is set.
func (p *Preparer) Prepare(ctx context.Context, sources []book.KnowledgeSource, o Options) ([]Piece, error) {
	o = o.withDefaults()
	log := p.logger.With(slog.String("preparation_id", o.PreparationID))

	results := make([][]Piece, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.MaxParallel)
	for i, src := range sources {
		if src.Name == "" {
			src.Name = hashx.Name(hashx.Source{Text: src.Source})
		}
		g.Go(func() error {
			pieces, err := p.prepareSource(gctx, src, o)
			if err != nil {
				if o.SkipInvalidSources && gctx.Err() == nil {
					log.WarnContext(gctx, "skipping invalid knowledge source", slog.String("source", src.Name), slogx.Error(err))
					return nil
				}
				return fmt.Errorf("knowledge source %s: %w", src.Name, err)
			}
			results[i] = pieces
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var (
		all  []Piece
		seen = map[string]bool{}
	)
	for _, pieces := range results {
		for _, pc := range pieces {
			if !seen[pc.Name] {
				seen[pc.Name] = true
				all = append(all, pc)
			}
		}
	}
	log.DebugContext(ctx, "prepared knowledge", slog.Int("sources", len(sources)), slog.Int("pieces", len(all)))
	return all, nil
}

func (p *Preparer) prepareSource(ctx context.Context, src book.KnowledgeSource, o Options) ([]Piece, error) {
	text, err := p.fetcher.Fetch(ctx, src.Source)
	if err != nil {
		return nil, err
	}

	var pieces []Piece
	for _, chunk := range Split(text, o.MaxPieceChars) {
		pc := Piece{
			Name:       PieceName(chunk.Content),
			Title:      chunk.Title,
			Content:    chunk.Content,
			SourceName: src.Name,
		}
		if err := p.embed(ctx, &pc, o.EmbeddingModel); err != nil {
			return nil, err
		}
		stored, _, err := p.cache.Append(ctx, pc, o.PreparationID)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, stored)
	}
	return pieces, nil
}

func (p *Preparer) embed(ctx context.Context, pc *Piece, model string) error {
	if p.tools == nil || model == "" {
		return nil
	}
	if cached, ok, err := p.cache.Get(ctx, pc.Name); err != nil {
		return err
	} else if ok && len(cached.Embedding) > 0 {
		return nil
	}

	res, err := provider.CallEmbedding(ctx, p.tools, provider.Prompt{
		Title:   pc.Name,
		Content: pc.Content,
		ModelRequirements: types.ModelRequirements{
			Variant:   types.VariantEmbedding,
			ModelName: model,
		},
	})
	if err != nil {
		return fmt.Errorf("embed piece %s: %w", pc.Name, err)
	}
	pc.Embedding = res.Vector
	pc.EmbeddingModel = res.ModelName
	p.usage.Add(res.Usage)
	return nil
}
