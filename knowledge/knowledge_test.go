package knowledge_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/knowledge"
	"github.com/casualjim/folio/provider/mock"
	"github.com/casualjim/folio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handbook = `# Returns

Items can be returned within 30 days of delivery.

Refunds are issued to the original payment method.

# Shipping

We ship to every country in the European Union.`

func names(pieces []knowledge.Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Name
	}
	return out
}

func TestPrepare_Idempotent(t *testing.T) {
	ctx := context.Background()
	cache := knowledge.NewCache()
	p := knowledge.NewPreparer(knowledge.WithCache(cache))
	sources := []book.KnowledgeSource{book.NewKnowledgeSource(handbook)}

	first, err := p.Prepare(ctx, sources, knowledge.Options{})
	require.NoError(t, err)
	second, err := p.Prepare(ctx, sources, knowledge.Options{})
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.Equal(t, names(first), names(second))
	assert.Len(t, cache.Pieces(), len(first))

	for _, pc := range second {
		require.Len(t, pc.PreparationIDs, 2)
		assert.NotEqual(t, pc.PreparationIDs[0], pc.PreparationIDs[1])
	}

	t.Run("same preparation id is recorded once", func(t *testing.T) {
		o := knowledge.Options{PreparationID: "fixed"}
		_, err := p.Prepare(ctx, sources, o)
		require.NoError(t, err)
		again, err := p.Prepare(ctx, sources, o)
		require.NoError(t, err)
		for _, pc := range again {
			assert.Len(t, pc.PreparationIDs, 3)
		}
	})
}

func TestPrepare_Pieces(t *testing.T) {
	p := knowledge.NewPreparer()
	src := book.NewKnowledgeSource(handbook)
	pieces, err := p.Prepare(context.Background(), []book.KnowledgeSource{src}, knowledge.Options{})
	require.NoError(t, err)

	require.Len(t, pieces, 2)
	assert.Equal(t, "Returns", pieces[0].Title)
	assert.Contains(t, pieces[0].Content, "30 days")
	assert.Contains(t, pieces[0].Content, "Refunds")
	assert.Equal(t, "Shipping", pieces[1].Title)
	for _, pc := range pieces {
		assert.Equal(t, src.Name, pc.SourceName)
		assert.Equal(t, knowledge.PieceName(pc.Content), pc.Name)
	}

	t.Run("small pieces", func(t *testing.T) {
		pieces, err := p.Prepare(context.Background(), []book.KnowledgeSource{src}, knowledge.Options{MaxPieceChars: 60})
		require.NoError(t, err)
		assert.Len(t, pieces, 3)
	})
}

func TestPrepare_InvalidSources(t *testing.T) {
	ctx := context.Background()
	sources := []book.KnowledgeSource{
		book.NewKnowledgeSource("./missing.md"),
		book.NewKnowledgeSource("Inline knowledge."),
	}

	assert.False(t, knowledge.DefaultOptions().SkipInvalidSources)

	t.Run("fails by default", func(t *testing.T) {
		p := knowledge.NewPreparer(knowledge.WithFetcher(&knowledge.DefaultFetcher{Root: t.TempDir()}))
		_, err := p.Prepare(ctx, sources, knowledge.Options{})
		require.Error(t, err)
		assert.ErrorIs(t, err, knowledge.ErrSourceNotFound)
		assert.Contains(t, err.Error(), sources[0].Name)
	})

	t.Run("skips when asked", func(t *testing.T) {
		p := knowledge.NewPreparer(knowledge.WithFetcher(&knowledge.DefaultFetcher{Root: t.TempDir()}))
		pieces, err := p.Prepare(ctx, sources, knowledge.Options{SkipInvalidSources: true})
		require.NoError(t, err)
		require.Len(t, pieces, 1)
		assert.Equal(t, "Inline knowledge.", pieces[0].Content)
	})
}

func TestPrepare_BoundedConcurrency(t *testing.T) {
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	release := make(chan struct{})
	fetcher := knowledge.FetcherFunc(func(ctx context.Context, source string) (string, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		<-release
		mu.Lock()
		running--
		mu.Unlock()
		return source, nil
	})

	var sources []book.KnowledgeSource
	for i := range 10 {
		sources = append(sources, book.NewKnowledgeSource(fmt.Sprintf("fact number %d", i)))
	}

	p := knowledge.NewPreparer(knowledge.WithFetcher(fetcher))
	done := make(chan error, 1)
	go func() {
		_, err := p.Prepare(context.Background(), sources, knowledge.Options{MaxParallel: 3})
		done <- err
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return running == 3
	}, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 3, peak)
}

func TestPrepare_Embeddings(t *testing.T) {
	tools := mock.New(mock.WithEmbedder(mock.LengthEmbedder))
	p := knowledge.NewPreparer(knowledge.WithTools(tools))
	src := []book.KnowledgeSource{book.NewKnowledgeSource("Four words in here.")}

	pieces, err := p.Prepare(context.Background(), src, knowledge.Options{EmbeddingModel: "mocked-EMBEDDING"})
	require.NoError(t, err)
	require.Len(t, pieces, 1)
	assert.Equal(t, []float64{19, 4, 1}, pieces[0].Embedding)
	assert.Equal(t, "mocked-EMBEDDING", pieces[0].EmbeddingModel)
	assert.Equal(t, 1, tools.Calls())
	assert.Equal(t, int64(4), p.Usage().Input.Words)

	_, err = p.Prepare(context.Background(), src, knowledge.Options{EmbeddingModel: "mocked-EMBEDDING"})
	require.NoError(t, err)
	assert.Equal(t, 1, tools.Calls(), "cached embeddings are reused")

	t.Run("embedding failure fails the source", func(t *testing.T) {
		boom := errors.New("boom")
		p := knowledge.NewPreparer(knowledge.WithTools(mock.Failing("down", boom)))
		_, err := p.Prepare(context.Background(), src, knowledge.Options{EmbeddingModel: "x"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCache_AppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	cache := knowledge.NewCache()
	piece := knowledge.Piece{Name: knowledge.PieceName("shared"), Content: "shared", SourceName: "s"}

	var wg sync.WaitGroup
	created := make(chan bool, 50)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := cache.Append(ctx, piece, fmt.Sprintf("prep-%d", i))
			assert.NoError(t, err)
			created <- c
		}()
	}
	wg.Wait()
	close(created)

	var creations int
	for c := range created {
		if c {
			creations++
		}
	}
	assert.Equal(t, 1, creations)

	got, ok, err := cache.Get(ctx, piece.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.PreparationIDs, 50)
}

func TestCache_Storage(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	piece := knowledge.Piece{Name: knowledge.PieceName("persisted"), Content: "persisted", SourceName: "s"}

	_, _, err := knowledge.NewCache(knowledge.WithStorage(store)).Append(ctx, piece, "one")
	require.NoError(t, err)

	raw, ok, err := store.GetItem(ctx, knowledge.StoragePrefix+piece.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"one"`)

	reopened := knowledge.NewCache(knowledge.WithStorage(store))
	got, created, err := reopened.Append(ctx, piece, "two")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"one", "two"}, got.PreparationIDs)

	require.NoError(t, reopened.Remove(ctx, piece.Name))
	_, ok, err = store.GetItem(ctx, knowledge.StoragePrefix+piece.Name)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Remove(t *testing.T) {
	ctx := context.Background()
	cache := knowledge.NewCache()
	kept := knowledge.Piece{Name: knowledge.PieceName("kept"), Content: "kept", SourceName: "s"}
	gone := knowledge.Piece{Name: knowledge.PieceName("gone"), Content: "gone", SourceName: "s"}
	for _, p := range []knowledge.Piece{kept, gone} {
		_, _, err := cache.Append(ctx, p, "one")
		require.NoError(t, err)
	}
	require.Len(t, cache.Pieces(), 2)

	require.NoError(t, cache.Remove(ctx, gone.Name))
	assert.Equal(t, []string{kept.Name}, names(cache.Pieces()))
	_, ok, err := cache.Get(ctx, gone.Name)
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("unknown name", func(t *testing.T) {
		require.NoError(t, cache.Remove(ctx, "missing"))
		assert.Len(t, cache.Pieces(), 1)
	})

	t.Run("append after remove starts over", func(t *testing.T) {
		got, created, err := cache.Append(ctx, gone, "two")
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, []string{"two"}, got.PreparationIDs)
	})
}

func TestPieceName(t *testing.T) {
	shared := "Items can be returned within 30 days of delivery."
	other := "Items can be returned within 14 days of purchase."

	a, b := knowledge.PieceName(shared), knowledge.PieceName(other)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "items-can-be-returne-"))
	assert.True(t, strings.HasPrefix(b, "items-can-be-returne-"))
	assert.Regexp(t, `-[0-9a-f]{64}$`, a)
	assert.Equal(t, a, knowledge.PieceName(shared))

	cache := knowledge.NewCache()
	ctx := context.Background()
	for _, content := range []string{shared, other} {
		_, created, err := cache.Append(ctx, knowledge.Piece{Name: knowledge.PieceName(content), Content: content, SourceName: "s"}, "one")
		require.NoError(t, err)
		assert.True(t, created)
	}
	assert.Len(t, cache.Pieces(), 2)
}

func TestDefaultFetcher(t *testing.T) {
	ctx := context.Background()

	t.Run("inline", func(t *testing.T) {
		f := &knowledge.DefaultFetcher{}
		text, err := f.Fetch(ctx, "Plain text about cats.")
		require.NoError(t, err)
		assert.Equal(t, "Plain text about cats.", text)
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "facts.md"), []byte("file facts"), 0o600))
		f := &knowledge.DefaultFetcher{Root: dir}
		text, err := f.Fetch(ctx, "facts.md")
		require.NoError(t, err)
		assert.Equal(t, "file facts", text)
	})

	t.Run("url", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/missing" {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write([]byte("remote facts"))
		}))
		defer server.Close()

		f := &knowledge.DefaultFetcher{Client: server.Client()}
		text, err := f.Fetch(ctx, server.URL+"/facts")
		require.NoError(t, err)
		assert.Equal(t, "remote facts", text)

		_, err = f.Fetch(ctx, server.URL+"/missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		expected []knowledge.Chunk
	}{
		{
			name:     "single paragraph",
			text:     "Hello world.",
			max:      100,
			expected: []knowledge.Chunk{{Content: "Hello world."}},
		},
		{
			name: "packs paragraphs",
			text: "One.\n\nTwo.\n\nThree.",
			max:  11,
			expected: []knowledge.Chunk{
				{Content: "One.\n\nTwo."},
				{Content: "Three."},
			},
		},
		{
			name: "heading with body",
			text: "## Intro\nFirst line.\n\n## Next\n\nSecond.",
			max:  100,
			expected: []knowledge.Chunk{
				{Title: "Intro", Content: "First line."},
				{Title: "Next", Content: "Second."},
			},
		},
		{
			name: "long paragraph cut at words",
			text: "alpha beta gamma delta",
			max:  11,
			expected: []knowledge.Chunk{
				{Content: "alpha beta"},
				{Content: "gamma delta"},
			},
		},
		{
			name:     "empty",
			text:     " \n\n ",
			max:      10,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, knowledge.Split(tt.text, tt.max))
		})
	}

	t.Run("long word", func(t *testing.T) {
		chunks := knowledge.Split(strings.Repeat("x", 25), 10)
		assert.Equal(t, []knowledge.Chunk{
			{Content: strings.Repeat("x", 10)},
			{Content: strings.Repeat("x", 10)},
			{Content: "xxxxx"},
		}, chunks)
	})
}
