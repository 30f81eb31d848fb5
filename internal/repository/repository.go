// Package repository declares the storage interfaces the services depend on.
//
// The site owns no transactional data. The only store is the read-only book
// catalog, rebuilt in memory from the bundled JSON at every start.
package repository

import (
	"context"

	"github.com/sakif/bookdigest/internal/model"
)

// DefaultRecentLimit is the number of books Recent returns when asked for
// zero or fewer.
const DefaultRecentLimit = 40

type BookRepository interface {
	// List returns every book in bundle order.
	List(ctx context.Context) ([]model.Book, error)
	// GetBySlug returns apperror.ErrNotFound when no book has slug.
	GetBySlug(ctx context.Context, slug string) (*model.Book, error)
	// Recent returns books by read date, newest first, undated last.
	Recent(ctx context.Context, limit int) ([]model.Book, error)
	// ListByTag returns the books carrying tag, in bundle order.
	ListByTag(ctx context.Context, tag string) ([]model.Book, error)
	// Tags returns every distinct tag with its book count.
	Tags(ctx context.Context) ([]TagCount, error)
}

type TagCount struct {
	Tag   string
	Count int
}
