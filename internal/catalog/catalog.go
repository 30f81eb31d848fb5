// Package catalog holds the bundled site content: the books the club has
// read and the counters shown on the events page.
package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/sakif/bookdigest/internal/model"
)

//go:embed data/books.json data/stats.json
var dataFS embed.FS

// Books decodes the bundled books.json.
func Books() ([]model.Book, error) {
	return BooksFS(dataFS)
}

// Stats decodes the bundled stats.json.
func Stats() (model.Stats, error) {
	return StatsFS(dataFS)
}

// BooksFS decodes data/books.json from fsys and checks that every book has
// a unique, non-empty slug and a title.
func BooksFS(fsys fs.FS) ([]model.Book, error) {
	var books []model.Book
	if err := decode(fsys, "data/books.json", &books); err != nil {
		return nil, err
	}

	seen := make(map[string]int, len(books))
	for i := range books {
		b := &books[i]
		b.Slug = strings.TrimSpace(b.Slug)
		if b.Slug == "" {
			return nil, fmt.Errorf("books.json: entry %d has no slug", i)
		}
		if strings.TrimSpace(b.Title) == "" {
			return nil, fmt.Errorf("books.json: %q has no title", b.Slug)
		}
		if prev, dup := seen[b.Slug]; dup {
			return nil, fmt.Errorf("books.json: slug %q used by entries %d and %d", b.Slug, prev, i)
		}
		seen[b.Slug] = i
	}
	return books, nil
}

func StatsFS(fsys fs.FS) (model.Stats, error) {
	var s model.Stats
	if err := decode(fsys, "data/stats.json", &s); err != nil {
		return model.Stats{}, err
	}
	return s, nil
}

func decode(fsys fs.FS, path string, v any) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
