package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/bookdigest/internal/apperror"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/repository"
)

var _ repository.BookRepository = (*DB)(nil)

const bookColumns = `slug, id, title, title_en, author, cover_url, read_date,
	summary, summary_en, publisher_url, notes_url`

// Load replaces the catalog with books, keeping their order as the bundle
// order. Slugs must be unique.
func (db *DB) Load(ctx context.Context, books []model.Book) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM books`); err != nil {
		return fmt.Errorf("sqlite: clearing books: %w", err)
	}

	insertBook, err := tx.PrepareContext(ctx, `
		INSERT INTO books (slug, position, id, title, title_en, author, cover_url,
			read_date, read_at, summary, summary_en, publisher_url, notes_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing book insert: %w", err)
	}
	defer insertBook.Close()

	insertTag, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO book_tags (slug, tag, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: preparing tag insert: %w", err)
	}
	defer insertTag.Close()

	for i, b := range books {
		if strings.TrimSpace(b.Slug) == "" {
			return fmt.Errorf("sqlite: book %d (%q) has no slug", i, b.Title)
		}
		// read_at is the sortable form of read_date; NULL sorts as undated.
		var readAt sql.NullString
		if t, ok := b.ReadTime(); ok {
			readAt = sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
		}
		_, err := insertBook.ExecContext(ctx,
			b.Slug, i, string(b.ID), b.Title, b.TitleEn, b.Author, b.CoverURL,
			b.ReadDate, readAt, b.Summary, b.SummaryEn, b.Links.Publisher, b.Links.Notes,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting book %q: %w", b.Slug, err)
		}
		for j, tag := range b.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if _, err := insertTag.ExecContext(ctx, b.Slug, tag, j); err != nil {
				return fmt.Errorf("sqlite: tagging book %q: %w", b.Slug, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing load: %w", err)
	}
	return nil
}

func (db *DB) List(ctx context.Context) ([]model.Book, error) {
	return db.queryBooks(ctx, `SELECT `+bookColumns+` FROM books ORDER BY position`)
}

func (db *DB) GetBySlug(ctx context.Context, slug string) (*model.Book, error) {
	var b model.Book
	err := scanBook(db.conn.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE slug = ?`, slug), &b)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("book", slug)
		}
		return nil, fmt.Errorf("sqlite: getting book %s: %w", slug, err)
	}

	tags, err := db.tagsFor(ctx, []string{slug})
	if err != nil {
		return nil, err
	}
	b.Tags = tags[slug]
	return &b, nil
}

// Recent orders by read date, newest first. Undated books keep their bundle
// order after all dated ones.
func (db *DB) Recent(ctx context.Context, limit int) ([]model.Book, error) {
	if limit <= 0 {
		limit = repository.DefaultRecentLimit
	}
	return db.queryBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		ORDER BY read_at IS NULL, read_at DESC, position
		LIMIT ?`, limit)
}

func (db *DB) ListByTag(ctx context.Context, tag string) ([]model.Book, error) {
	return db.queryBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE slug IN (SELECT slug FROM book_tags WHERE tag = ?)
		ORDER BY position`, tag)
}

func (db *DB) Tags(ctx context.Context) ([]repository.TagCount, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT tag, COUNT(*) FROM book_tags
		GROUP BY tag
		ORDER BY COUNT(*) DESC, tag`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tags: %w", err)
	}
	defer rows.Close()

	var out []repository.TagCount
	for rows.Next() {
		var tc repository.TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner, b *model.Book) error {
	var id string
	err := s.Scan(&b.Slug, &id, &b.Title, &b.TitleEn, &b.Author, &b.CoverURL, &b.ReadDate,
		&b.Summary, &b.SummaryEn, &b.Links.Publisher, &b.Links.Notes)
	b.ID = model.BookID(id)
	return err
}

func (db *DB) queryBooks(ctx context.Context, query string, args ...any) ([]model.Book, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing books: %w", err)
	}
	defer rows.Close()

	books := []model.Book{}
	var slugs []string
	for rows.Next() {
		var b model.Book
		if err := scanBook(rows, &b); err != nil {
			return nil, fmt.Errorf("sqlite: scanning book: %w", err)
		}
		books = append(books, b)
		slugs = append(slugs, b.Slug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating books: %w", err)
	}
	// Release the single connection before the tag query.
	rows.Close()

	if len(books) == 0 {
		return books, nil
	}
	tags, err := db.tagsFor(ctx, slugs)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Tags = tags[books[i].Slug]
	}
	return books, nil
}

func (db *DB) tagsFor(ctx context.Context, slugs []string) (map[string][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(slugs)), ",")
	args := make([]any, len(slugs))
	for i, s := range slugs {
		args[i] = s
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT slug, tag FROM book_tags WHERE slug IN (`+placeholders+`) ORDER BY slug, position`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string, len(slugs))
	for rows.Next() {
		var slug, tag string
		if err := rows.Scan(&slug, &tag); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		out[slug] = append(out[slug], tag)
	}
	return out, rows.Err()
}
