package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/bookdigest/internal/i18n"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/repository"
)

// OtherBooksLimit is the size of the "more from our shelf" sidebar.
const OtherBooksLimit = 5

// BookView is a book prepared for one locale.
type BookView struct {
	Slug          string
	Title         string
	OriginalTitle string
	Author        string
	Cover         string
	Summary       string
	Tags          []string
	Links         model.BookLinks
	// ReadOn is the localized month the club read the book, "" if undated.
	ReadOn string
	ReadAt time.Time
}

// BookDetail is the book page: the book plus a few others to browse.
type BookDetail struct {
	Book   BookView
	Others []BookView
}

// CatalogService serves the read-only book catalog and the event counters.
type CatalogService struct {
	repo  repository.BookRepository
	stats model.Stats
}

func NewCatalogService(repo repository.BookRepository, stats model.Stats) *CatalogService {
	return &CatalogService{repo: repo, stats: stats}
}

// Books returns every book in catalog order.
func (s *CatalogService) Books(ctx context.Context, l i18n.Locale) ([]BookView, error) {
	books, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return localizeAll(books, l), nil
}

// Book returns the book with slug and up to OtherBooksLimit other books in
// catalog order. A missing slug is an apperror.ErrNotFound.
func (s *CatalogService) Book(ctx context.Context, slug string, l i18n.Locale) (*BookDetail, error) {
	book, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}

	others := make([]BookView, 0, OtherBooksLimit)
	for _, b := range all {
		if len(others) == OtherBooksLimit {
			break
		}
		if b.Slug != book.Slug {
			others = append(others, Localize(b, l))
		}
	}
	return &BookDetail{Book: Localize(*book, l), Others: others}, nil
}

// RecentBooks returns books by read date, newest first, undated last.
// limit <= 0 means repository.DefaultRecentLimit.
func (s *CatalogService) RecentBooks(ctx context.Context, l i18n.Locale, limit int) ([]BookView, error) {
	books, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent books: %w", err)
	}
	return localizeAll(books, l), nil
}

// BooksByTag returns the books carrying tag.
func (s *CatalogService) BooksByTag(ctx context.Context, tag string, l i18n.Locale) ([]BookView, error) {
	books, err := s.repo.ListByTag(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("books by tag %q: %w", tag, err)
	}
	return localizeAll(books, l), nil
}

func (s *CatalogService) Tags(ctx context.Context) ([]repository.TagCount, error) {
	return s.repo.Tags(ctx)
}

// AllBooks returns the raw catalog, for the sitemap.
func (s *CatalogService) AllBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.List(ctx)
}

func (s *CatalogService) Stats() model.Stats {
	return s.stats
}

// Localize prepares b for l.
func Localize(b model.Book, l i18n.Locale) BookView {
	v := BookView{
		Slug:          b.Slug,
		Title:         b.DisplayTitle(l.IsEnglish()),
		OriginalTitle: b.Title,
		Author:        b.Author,
		Cover:         b.Cover(),
		Summary:       b.DisplaySummary(l.IsEnglish()),
		Tags:          b.Tags,
		Links:         b.Links,
	}
	if t, ok := b.ReadTime(); ok {
		v.ReadAt = t
		v.ReadOn = i18n.MonthYear(l, t)
	}
	return v
}

func localizeAll(books []model.Book, l i18n.Locale) []BookView {
	out := make([]BookView, len(books))
	for i, b := range books {
		out[i] = Localize(b, l)
	}
	return out
}
