// Package hashx computes deterministic identities for knowledge sources and pieces.
//
// A source is hashed over length-prefixed components so that no two different
// inputs can collide through concatenation. Unordered sub-collections, such as the
// attachment URLs of a source, are sorted before hashing: their order never changes
// the identity.
package hashx

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-openapi/swag"
)

const (
	// ShortLen is the number of hex characters of the digest kept in names.
	ShortLen = 8

	// SlugRunes is the number of leading characters of the text used for the name slug.
	SlugRunes = 20
)

// Source is the hashable description of one knowledge source.
type Source struct {
	// Text is a file path, a URL or inline content.
	Text string

	// Attachments is an unordered list of attachment URLs.
	Attachments []string
}

// Hash returns the hex encoded SHA-256 digest of the source.
func Hash(src Source) string {
	h := sha256.New()
	writeComponent(h, "text", src.Text)

	atts := slices.Clone(src.Attachments)
	slices.Sort(atts)
	for _, a := range atts {
		writeComponent(h, "attachment", a)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Text returns the hex encoded SHA-256 digest of a plain text.
func Text(text string) string {
	return Hash(Source{Text: text})
}

// Name returns a stable, human readable name for the source: a slug of the first
// characters of its text followed by a truncated digest.
func Name(src Source) string {
	return named(src.Text, Hash(src)[:ShortLen])
}

// ContentName names a text by its slug and its full digest. Pieces are keyed by
// it: two texts share a name only when their content hashes are equal.
func ContentName(text string) string {
	return named(text, Text(text))
}

func named(text, digest string) string {
	slug := Slug(prefix(text, SlugRunes))
	if slug == "" {
		return digest
	}
	return slug + "-" + digest
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slug normalizes a text into a lower case, dash separated identifier.
func Slug(text string) string {
	words := strings.Fields(nonWord.ReplaceAllString(text, " "))
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if p := strings.Trim(swag.ToCommandName(w), "-"); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func writeComponent(h hash.Hash, label, value string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(label)))
	h.Write(lenBuf[:])
	h.Write([]byte(label))
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(value)))
	h.Write(lenBuf[:])
	h.Write([]byte(value))
}
