package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Fetcher resolves a knowledge source to its text.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, source string) (string, error)

func (f FetcherFunc) Fetch(ctx context.Context, source string) (string, error) {
	return f(ctx, source)
}

// MaxFetchBytes caps the size of a fetched document.
const MaxFetchBytes = 10 << 20

// ErrSourceNotFound is returned for file sources that do not exist.
var ErrSourceNotFound = errors.New("knowledge source not found")

var fileExtensions = []string{".md", ".markdown", ".txt", ".text", ".json", ".csv", ".html", ".htm", ".xml", ".yaml", ".yml"}

// DefaultFetcher downloads http(s) URLs, reads files relative to Root and treats
// anything else as inline text.
type DefaultFetcher struct {
	Client *http.Client
	Root   string
}

func (f *DefaultFetcher) Fetch(ctx context.Context, source string) (string, error) {
	src := strings.TrimSpace(source)
	switch {
	case isURL(src):
		return f.fetchURL(ctx, src)
	case isPath(src):
		return f.readFile(src)
	default:
		return source, nil
	}
}

func (f *DefaultFetcher) fetchURL(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", src, err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch %s: unexpected status %s", src, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}
	return string(body), nil
}

func (f *DefaultFetcher) readFile(src string) (string, error) {
	path := src
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, src)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", src, err)
	}
	return string(data), nil
}

func isURL(src string) bool {
	if strings.ContainsAny(src, " \n") {
		return false
	}
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isPath(src string) bool {
	if src == "" || strings.ContainsAny(src, "\n") {
		return false
	}
	if strings.HasPrefix(src, "./") || strings.HasPrefix(src, "../") || strings.HasPrefix(src, "/") {
		return !strings.Contains(src, " ")
	}
	if strings.Contains(src, " ") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(src))
	for _, e := range fileExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
