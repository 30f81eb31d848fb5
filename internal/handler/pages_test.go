package handler

import (
	"context"
	"encoding/xml"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/bookdigest/internal/catalog"
	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/i18n"
	"github.com/sakif/bookdigest/internal/repository/sqlite"
	"github.com/sakif/bookdigest/internal/service"
	"github.com/sakif/bookdigest/web"
)

const testSiteURL = "https://bookdigest.test"

// newPages builds the page routes over the bundled catalog, the way the
// server mounts them.
func newPages(t *testing.T) http.Handler {
	t.Helper()

	books, err := catalog.Books()
	require.NoError(t, err)
	stats, err := catalog.Stats()
	require.NoError(t, err)
	db, err := sqlite.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Load(context.Background(), books))

	bundle, err := i18n.Load()
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewPageHandler(web.Templates, bundle, service.NewCatalogService(db, stats),
		config.Site{URL: testSiteURL + "/", Name: "Book Digest"}, logger)
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.NotFound(h.HandleNotFound)
	r.Get("/lang/{locale}", h.HandleSwitchLocale)
	r.Get("/sitemap.xml", h.HandleSitemap)
	r.Get("/robots.txt", h.HandleRobots)
	h.Mount(r)
	for _, l := range i18n.Supported {
		r.Route("/"+string(l), h.Mount)
	}
	return r
}

func get(t *testing.T, h http.Handler, target string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, o := range opts {
		o(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// =========================================================================
// PAGES
// =========================================================================

func TestPages_AllRender(t *testing.T) {
	h := newPages(t)

	paths := []string{"/", "/about", "/books", "/books/sapiens", "/events", "/joinus", "/joinus?location=TW", "/privacy", "/terms"}
	for _, p := range paths {
		for _, prefix := range []string{"", "/en", "/zh"} {
			target := prefix + p
			if prefix != "" && p == "/" {
				target = prefix
			}
			t.Run(target, func(t *testing.T) {
				rr := get(t, h, target)
				assert.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
				assert.Contains(t, rr.Body.String(), "</html>")
			})
		}
	}
}

func TestPages_HomeSEO(t *testing.T) {
	rr := get(t, newPages(t), "/")
	body := rr.Body.String()

	assert.Contains(t, body, `<html lang="en">`)
	assert.Contains(t, body, "<title>Book Digest - A space to rest, read, and reconnect</title>")
	assert.Contains(t, body, `<link rel="canonical" href="https://bookdigest.test/">`)
	assert.Contains(t, body, `hreflang="zh-Hant" href="https://bookdigest.test/zh"`)
	assert.Contains(t, body, `hreflang="x-default" href="https://bookdigest.test/"`)
	assert.Contains(t, body, `content="https://bookdigest.test/static/images/og-image.png"`)
	assert.Contains(t, body, `content="summary_large_image"`)
	assert.Contains(t, body, "1,260")
}

func TestPages_FooterYear(t *testing.T) {
	h := newPages(t)

	assert.Contains(t, get(t, h, "/").Body.String(), "© 2025 Book Digest. All rights reserved.")
	assert.Contains(t, get(t, h, "/zh").Body.String(), "© 2025 Book Digest 版權所有")
}

func TestPages_TitleTemplate(t *testing.T) {
	rr := get(t, newPages(t), "/events")
	assert.Contains(t, rr.Body.String(), "<title>Events | Book Digest</title>")
}

func TestPages_ChinesePrefix(t *testing.T) {
	rr := get(t, newPages(t), "/zh/books/atomic-habits")
	body := rr.Body.String()

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, body, `<html lang="zh-Hant">`)
	assert.Contains(t, body, "原子習慣")
	assert.Contains(t, body, `<meta property="og:type" content="article">`)
	assert.Contains(t, body, `content="https://bookdigest.test/static/images/covers/atomic-habits.svg"`)
	assert.Contains(t, body, `<link rel="canonical" href="https://bookdigest.test/zh/books/atomic-habits">`)
	assert.Contains(t, body, `href="/lang/en?next=%2Fbooks%2Fatomic-habits"`)
	assert.Equal(t, "zh-Hant", rr.Header().Get("Content-Language"))
}

func TestPages_LocaleFromCookieAndHeader(t *testing.T) {
	h := newPages(t)

	rr := get(t, h, "/about", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: i18n.CookieName, Value: "zh"})
		r.Header.Set("Accept-Language", "en-US")
	})
	assert.Contains(t, rr.Body.String(), `<html lang="zh-Hant">`)

	rr = get(t, h, "/about", func(r *http.Request) { r.Header.Set("Accept-Language", "zh-TW,zh;q=0.9") })
	assert.Contains(t, rr.Body.String(), `<html lang="zh-Hant">`)

	rr = get(t, h, "/about", func(r *http.Request) { r.Header.Set("Accept-Language", "nl-NL") })
	assert.Contains(t, rr.Body.String(), `<html lang="en">`)
}

func TestPages_VaryOnNegotiatedLocale(t *testing.T) {
	h := newPages(t)

	rr := get(t, h, "/about")
	assert.Equal(t, []string{"Cookie", "Accept-Language"}, rr.Header().Values("Vary"))

	rr = get(t, h, "/books/no-such-book")
	assert.Equal(t, []string{"Cookie", "Accept-Language"}, rr.Header().Values("Vary"))

	for _, target := range []string{"/zh/about", "/en/about", "/zh"} {
		assert.Empty(t, get(t, h, target).Header().Values("Vary"), target)
	}
}

func TestPages_BookEnglishTitle(t *testing.T) {
	rr := get(t, newPages(t), "/books/kafka-on-the-shore")
	body := rr.Body.String()

	assert.Contains(t, body, "<h1>Kafka on the Shore</h1>")
	assert.Contains(t, body, "Read in September 2025")
	assert.Contains(t, body, "More from our shelf")
}

func TestPages_BooksTagFilter(t *testing.T) {
	rr := get(t, newPages(t), "/books?tag=japan")
	body := rr.Body.String()

	assert.Contains(t, body, "Kafka on the Shore")
	assert.Contains(t, body, "The Courage to Be Disliked")
	assert.NotContains(t, body, `<span class="book-title">Atomic Habits</span>`)
}

func TestPages_JoinUs(t *testing.T) {
	h := newPages(t)

	chooser := get(t, h, "/joinus?location=US").Body.String()
	assert.Contains(t, chooser, "?location=TW")
	assert.NotContains(t, chooser, `id="signup-form"`)

	form := get(t, h, "/zh/joinus?location=NL").Body.String()
	assert.Contains(t, form, `id="signup-form"`)
	assert.Contains(t, form, `data-location="NL"`)
	assert.Contains(t, form, `name="website"`)
	assert.Contains(t, form, `value="Others"`)
}

func TestPages_NotFound(t *testing.T) {
	h := newPages(t)

	rr := get(t, h, "/books/no-such-book")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "Page not found")

	rr = get(t, h, "/zh/nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "找不到頁面")

	rr = get(t, h, "/api/nowhere")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"Not found"}`, rr.Body.String())
}

// =========================================================================
// LANGUAGE SWITCH
// =========================================================================

func TestSwitchLocale(t *testing.T) {
	h := newPages(t)

	tests := []struct {
		target string
		want   string
	}{
		{"/lang/zh?next=/books", "/zh/books"},
		{"/lang/zh", "/zh"},
		{"/lang/en?next=/zh/books/sapiens", "/books/sapiens"},
		{"/lang/zh?next=" + "%2Fbooks%3Ftag%3Djapan", "/zh/books?tag=japan"},
		{"/lang/zh?next=//evil.example/x", "/zh"},
		{"/lang/en?next=https://evil.example", "/"},
		{"/lang/en?next=/%5Cevil.example", "/"},
		{"/lang/en?next=books", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rr := get(t, h, tt.target)
			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Location"))
		})
	}
}

func TestSwitchLocale_SetsCookie(t *testing.T) {
	rr := get(t, newPages(t), "/lang/zh?next=/events")

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, i18n.CookieName, cookies[0].Name)
	assert.Equal(t, "zh", cookies[0].Value)
}

func TestSwitchLocale_Unknown(t *testing.T) {
	rr := get(t, newPages(t), "/lang/fr?next=/books")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, rr.Result().Cookies())
}

// =========================================================================
// SITEMAP / ROBOTS
// =========================================================================

func TestSitemap(t *testing.T) {
	rr := get(t, newPages(t), "/sitemap.xml")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "application/xml"))

	var set urlSet
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &set))

	books, err := catalog.Books()
	require.NoError(t, err)
	require.Len(t, set.URLs, len(staticSitemap)+len(books))

	byLoc := make(map[string]sitemapURL, len(set.URLs))
	for _, u := range set.URLs {
		byLoc[u.Loc] = u
	}

	home := byLoc[testSiteURL]
	assert.Equal(t, "1.0", home.Priority)
	assert.Equal(t, "weekly", home.ChangeFreq)
	assert.Equal(t, "0.7", byLoc[testSiteURL+"/about"].Priority)

	kafka := byLoc[testSiteURL+"/books/kafka-on-the-shore"]
	assert.Equal(t, "2025-09-13", kafka.LastMod)
	assert.Equal(t, "0.8", kafka.Priority)
	assert.Equal(t, "2025-08-01", byLoc[testSiteURL+"/books/atomic-habits"].LastMod)
	assert.Equal(t, "2025-10-01", byLoc[testSiteURL+"/books/digital-minimalism"].LastMod)
}

func TestRobots(t *testing.T) {
	rr := get(t, newPages(t), "/robots.txt")
	body := rr.Body.String()

	assert.Contains(t, body, "Disallow: /api/")
	assert.Contains(t, body, "Sitemap: https://bookdigest.test/sitemap.xml")
}
