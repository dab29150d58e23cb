package knowledge

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/folio/internal/registry"
	"github.com/casualjim/folio/storage"
	"github.com/fogfish/opts"
)

// StoragePrefix is prepended to piece names when a cache persists pieces.
const StoragePrefix = "knowledge/"

// Cache holds prepared pieces by name. It is safe for concurrent use. Create one per
// process, or one per test, and pass it to every Preparer that should share pieces.
type Cache struct {
	entries registry.Registry[*entry]
	store   storage.Storage
}

type entry struct {
	mu     sync.Mutex
	loaded bool
	piece  Piece
}

// WithStorage persists pieces to a storage backend under StoragePrefix.
func WithStorage(s storage.Storage) opts.Option[Cache] {
	return opts.Type[Cache](func(c *Cache) error {
		if s != nil {
			c.store = storage.WithPrefix(s, StoragePrefix)
		}
		return nil
	})
}

// NewCache creates an empty cache.
func NewCache(options ...opts.Option[Cache]) *Cache {
	c := &Cache{entries: registry.New[*entry]()}
	if err := opts.Apply(c, options); err != nil {
		panic(err)
	}
	return c
}

func (c *Cache) entry(name string) *entry {
	e, _ := c.entries.GetOrAdd(name, func() *entry { return &entry{} })
	return e
}

// load fills e from storage once. Callers hold e.mu.
func (c *Cache) load(ctx context.Context, name string, e *entry) error {
	if e.loaded {
		return nil
	}
	if c.store != nil {
		p, ok, err := storage.GetJSON[Piece](ctx, c.store, name)
		if err != nil {
			return fmt.Errorf("load piece %s: %w", name, err)
		}
		if ok {
			e.piece = p
		}
	}
	e.loaded = true
	return nil
}

// Append records preparationID on the piece named p.Name, storing p first when the
// cache does not know it yet. The read, the check for an existing id and the append
// happen under the piece's lock, so concurrent preparations never lose an id.
// It returns a copy of the cached piece and whether it was created by this call.
func (c *Cache) Append(ctx context.Context, p Piece, preparationID string) (Piece, bool, error) {
	e := c.entry(p.Name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.load(ctx, p.Name, e); err != nil {
		return Piece{}, false, err
	}

	created := e.piece.Name == ""
	if created {
		e.piece = p.clone()
		e.piece.PreparationIDs = nil
	} else if len(e.piece.Embedding) == 0 && len(p.Embedding) > 0 {
		e.piece.Embedding = slices.Clone(p.Embedding)
		e.piece.EmbeddingModel = p.EmbeddingModel
	}
	if !slices.Contains(e.piece.PreparationIDs, preparationID) {
		e.piece.PreparationIDs = append(e.piece.PreparationIDs, preparationID)
	}

	if c.store != nil {
		if err := storage.SetJSON(ctx, c.store, p.Name, e.piece); err != nil {
			return Piece{}, false, fmt.Errorf("store piece %s: %w", p.Name, err)
		}
	}
	return e.piece.clone(), created, nil
}

// Get returns a copy of the piece with the given name.
func (c *Cache) Get(ctx context.Context, name string) (Piece, bool, error) {
	e := c.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := c.load(ctx, name, e); err != nil {
		return Piece{}, false, err
	}
	if e.piece.Name == "" {
		return Piece{}, false, nil
	}
	return e.piece.clone(), true, nil
}

// Pieces returns the pieces loaded in memory, sorted by name.
func (c *Cache) Pieces() []Piece {
	var pieces []Piece
	c.entries.Range(func(_ string, e *entry) bool {
		e.mu.Lock()
		if e.piece.Name != "" {
			pieces = append(pieces, e.piece.clone())
		}
		e.mu.Unlock()
		return true
	})
	slices.SortFunc(pieces, func(a, b Piece) int { return strings.Compare(a.Name, b.Name) })
	return pieces
}

// Remove forgets a piece, also in storage, and drops its entry from the cache.
func (c *Cache) Remove(ctx context.Context, name string) error {
	e := c.entry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if c.store != nil {
		if err := c.store.RemoveItem(ctx, name); err != nil {
			return fmt.Errorf("remove piece %s: %w", name, err)
		}
	}
	e.piece = Piece{}
	e.loaded = true
	c.entries.Del(name)
	return nil
}
