package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookdigest/internal/apperror"
	"github.com/sakif/bookdigest/internal/catalog"
	"github.com/sakif/bookdigest/internal/i18n"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/repository/sqlite"
)

// newCatalog loads the bundled catalog into a fresh in-memory index.
func newCatalog(t *testing.T) (*CatalogService, []model.Book) {
	t.Helper()
	books, err := catalog.Books()
	require.NoError(t, err)
	stats, err := catalog.Stats()
	require.NoError(t, err)

	db, err := sqlite.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Load(context.Background(), books))

	return NewCatalogService(db, stats), books
}

func TestCatalog_BooksLocalized(t *testing.T) {
	svc, books := newCatalog(t)

	en, err := svc.Books(context.Background(), i18n.English)
	require.NoError(t, err)
	zh, err := svc.Books(context.Background(), i18n.Chinese)
	require.NoError(t, err)

	require.Len(t, en, len(books))
	assert.Equal(t, "kafka-on-the-shore", en[0].Slug)
	assert.Equal(t, "Kafka on the Shore", en[0].Title)
	assert.Equal(t, "海邊的卡夫卡", en[0].OriginalTitle)
	assert.Equal(t, "September 2025", en[0].ReadOn)

	assert.Equal(t, "海邊的卡夫卡", zh[0].Title)
	assert.Equal(t, "2025年9月", zh[0].ReadOn)
}

func TestCatalog_Book(t *testing.T) {
	svc, books := newCatalog(t)

	detail, err := svc.Book(context.Background(), "atomic-habits", i18n.English)
	require.NoError(t, err)

	assert.Equal(t, "Atomic Habits", detail.Book.Title)
	assert.Equal(t, "/static/images/covers/atomic-habits.svg", detail.Book.Cover)
	assert.Len(t, detail.Others, min(OtherBooksLimit, len(books)-1))
	for _, o := range detail.Others {
		assert.NotEqual(t, "atomic-habits", o.Slug)
	}
	// Others follow catalog order.
	assert.Equal(t, "kafka-on-the-shore", detail.Others[0].Slug)
	assert.Equal(t, "sapiens", detail.Others[1].Slug)
}

func TestCatalog_BookNotFound(t *testing.T) {
	svc, _ := newCatalog(t)

	_, err := svc.Book(context.Background(), "no-such-book", i18n.English)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestCatalog_PlaceholderCover(t *testing.T) {
	svc, _ := newCatalog(t)

	detail, err := svc.Book(context.Background(), "sapiens", i18n.Chinese)
	require.NoError(t, err)
	assert.Equal(t, model.PlaceholderCover, detail.Book.Cover)
}

func TestCatalog_RecentBooks(t *testing.T) {
	svc, _ := newCatalog(t)

	recent, err := svc.RecentBooks(context.Background(), i18n.English, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)

	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].ReadAt.After(recent[i-1].ReadAt),
			"%s read after %s", recent[i].Slug, recent[i-1].Slug)
	}
}

func TestCatalog_TagsAndFilter(t *testing.T) {
	svc, _ := newCatalog(t)

	tags, err := svc.Tags(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, tags)

	for _, tc := range tags {
		books, err := svc.BooksByTag(context.Background(), tc.Tag, i18n.English)
		require.NoError(t, err)
		assert.Len(t, books, tc.Count, "tag %s", tc.Tag)
		for _, b := range books {
			assert.Contains(t, b.Tags, tc.Tag)
		}
	}
}

func TestCatalog_Stats(t *testing.T) {
	svc, _ := newCatalog(t)
	assert.Equal(t, 48, svc.Stats().ClubsHeld)
}

func TestLocalize_Undated(t *testing.T) {
	v := Localize(model.Book{Slug: "x", Title: "書", ReadDate: "someday"}, i18n.English)
	assert.Empty(t, v.ReadOn)
	assert.True(t, v.ReadAt.IsZero())
	assert.Equal(t, "書", v.Title)
}
