// Package handler contains the HTTP request handlers for the Book Digest site.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements the http.Handler interface:
//
//	type Handler interface {
//	    ServeHTTP(ResponseWriter, *Request)
//	}
//
// Or more commonly, we use http.HandlerFunc: a function with the right signature
// that automatically satisfies the Handler interface. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers should NOT contain business logic. They are the "glue" between
// HTTP and the services.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookdigest/internal/apperror"
	"github.com/sakif/bookdigest/internal/config"
	"github.com/sakif/bookdigest/internal/i18n"
	"github.com/sakif/bookdigest/internal/model"
	"github.com/sakif/bookdigest/internal/repository"
	"github.com/sakif/bookdigest/internal/service"
)

// HomeRecentBooks is the size of the book wall on the home page.
const HomeRecentBooks = 12

// DefaultOGImage is shared by every page without an image of its own.
const DefaultOGImage = "/static/images/og-image.png"

// Catalog is the read side the pages render.
type Catalog interface {
	Books(ctx context.Context, l i18n.Locale) ([]service.BookView, error)
	Book(ctx context.Context, slug string, l i18n.Locale) (*service.BookDetail, error)
	RecentBooks(ctx context.Context, l i18n.Locale, limit int) ([]service.BookView, error)
	BooksByTag(ctx context.Context, tag string, l i18n.Locale) ([]service.BookView, error)
	Tags(ctx context.Context) ([]repository.TagCount, error)
	AllBooks(ctx context.Context) ([]model.Book, error)
	Stats() model.Stats
}

// pageNames lists every page template. Each is parsed together with
// layout.html, which defines the shared "layout" and calls {{template "content" .}}.
var pageNames = []string{"home", "about", "books", "book", "events", "joinus", "privacy", "terms", "notfound"}

// PageHandler renders the HTML pages.
//
// Templates are parsed once at startup and reused on every request.
type PageHandler struct {
	templates map[string]*template.Template
	bundle    *i18n.Bundle
	catalog   Catalog
	site      config.Site
	logger    *slog.Logger
	now       func() time.Time
}

// NewPageHandler parses templates/layout.html with each page template from
// fsys.
//
// TEMPLATE COMPOSITION:
// Every page gets its own template set, so each page's {{define "content"}}
// fills the same placeholder in the layout without clashing.
func NewPageHandler(fsys fs.FS, bundle *i18n.Bundle, catalog Catalog, site config.Site, logger *slog.Logger) (*PageHandler, error) {
	h := &PageHandler{
		templates: make(map[string]*template.Template, len(pageNames)),
		bundle:    bundle,
		catalog:   catalog,
		site:      site,
		logger:    logger,
		now:       time.Now,
	}
	h.site.URL = strings.TrimRight(site.URL, "/")

	funcs := template.FuncMap{
		"t":      bundle.T,
		"number": bundle.Number,
		"path":   i18n.LocalizePath,
	}
	for _, name := range pageNames {
		tmpl, err := template.New(name).Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parsing %s template: %w", name, err)
		}
		h.templates[name] = tmpl
	}
	return h, nil
}

// Alternate is one hreflang link.
type Alternate struct {
	Lang string
	Href string
}

// SEO is everything the layout puts in <head>.
type SEO struct {
	Title       string
	Description string
	Canonical   string
	Image       string
	Type        string
	SiteName    string
	OGLocale    string
	OGAltLocale string
	Alternates  []Alternate
}

// Page is the data every template receives.
type Page struct {
	Locale i18n.Locale
	// Path is the request path without its locale prefix.
	Path string
	// Nav is the active header link ("books", "events", ...).
	Nav  string
	SEO  SEO
	// Year is preformatted; a message.Printer would group the digits of an int.
	Year string
	// Toggle links to the same page in the other locale.
	ToggleURL string
	Data      any
}

func (h *PageHandler) page(r *http.Request, nav, title, description string, data any) Page {
	l := i18n.FromContext(r.Context())
	path := i18n.StripPrefix(r.URL.Path)

	other := i18n.Chinese
	if l == i18n.Chinese {
		other = i18n.English
	}

	return Page{
		Locale:    l,
		Path:      path,
		Nav:       nav,
		SEO:       h.seo(l, path, title, description),
		Year:      strconv.Itoa(h.now().Year()),
		ToggleURL: "/lang/" + string(other) + "?next=" + url.QueryEscape(path),
		Data:      data,
	}
}

// seo builds the head metadata. An empty title means the site default,
// "Book Digest - A space to rest, read, and reconnect".
func (h *PageHandler) seo(l i18n.Locale, path, title, description string) SEO {
	name := h.bundle.T(l, "site.name")
	if title == "" {
		title = name + " - " + h.bundle.T(l, "site.tagline")
	} else {
		title = fmt.Sprintf("%s | %s", title, name)
	}
	if description == "" {
		description = h.bundle.T(l, "site.description")
	}

	alt := i18n.Chinese
	if l == i18n.Chinese {
		alt = i18n.English
	}

	return SEO{
		Title:       title,
		Description: description,
		Canonical:   h.site.URL + i18n.LocalizePath(l, path),
		Image:       h.absolute(DefaultOGImage),
		Type:        "website",
		SiteName:    name,
		OGLocale:    l.OGLocale(),
		OGAltLocale: alt.OGLocale(),
		Alternates: []Alternate{
			{Lang: i18n.English.HTMLLang(), Href: h.site.URL + i18n.LocalizePath(i18n.English, path)},
			{Lang: i18n.Chinese.HTMLLang(), Href: h.site.URL + i18n.LocalizePath(i18n.Chinese, path)},
			{Lang: "x-default", Href: h.site.URL + i18n.LocalizePath(i18n.Default, path)},
		},
	}
}

func (h *PageHandler) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.site.URL + path
}

// render executes the page into a buffer first, so a template error still
// produces a clean 500 instead of half a page.
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, p Page) {
	var buf bytes.Buffer
	if err := h.templates[name].ExecuteTemplate(&buf, "layout", p); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", p.Locale.HTMLLang())
	// Unprefixed paths pick the locale from the cookie or Accept-Language.
	if _, ok := i18n.PathLocale(r.URL.Path); !ok {
		w.Header().Add("Vary", "Cookie")
		w.Header().Add("Vary", "Accept-Language")
	}
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.DebugContext(r.Context(), "client went away", slog.String("error", err.Error()))
	}
}

func (h *PageHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		h.HandleNotFound(w, r)
		return
	}
	h.logger.ErrorContext(r.Context(), "page failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// =========================================================================
// PAGES
// =========================================================================

type homeData struct {
	Recent []service.BookView
	Stats  model.Stats
}

func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	recent, err := h.catalog.RecentBooks(r.Context(), l, HomeRecentBooks)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "home", h.page(r, "home", "", "", homeData{
		Recent: recent,
		Stats:  h.catalog.Stats(),
	}))
}

func (h *PageHandler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	h.render(w, r, http.StatusOK, "about",
		h.page(r, "about", h.bundle.T(l, "about.title"), h.bundle.T(l, "about.description"), nil))
}

type booksData struct {
	Books []service.BookView
	Tags  []repository.TagCount
	// Tag is the active ?tag= filter, "" for all books.
	Tag string
}

// HandleBooks lists the catalog, optionally filtered with ?tag=.
func (h *PageHandler) HandleBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := i18n.FromContext(ctx)
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))

	var (
		books []service.BookView
		err   error
	)
	if tag != "" {
		books, err = h.catalog.BooksByTag(ctx, tag, l)
	} else {
		books, err = h.catalog.Books(ctx, l)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tags, err := h.catalog.Tags(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "books",
		h.page(r, "books", h.bundle.T(l, "books.title"), h.bundle.T(l, "books.description"),
			booksData{Books: books, Tags: tags, Tag: tag}))
}

// HandleBook renders one book, or the 404 page for an unknown slug.
func (h *PageHandler) HandleBook(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	detail, err := h.catalog.Book(r.Context(), chi.URLParam(r, "slug"), l)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b := detail.Book
	p := h.page(r, "books", b.Title+" "+h.bundle.T(l, "books.by", b.Author), b.Summary, detail)
	p.SEO.Type = "article"
	if b.Cover != model.PlaceholderCover {
		p.SEO.Image = h.absolute(b.Cover)
	}
	h.render(w, r, http.StatusOK, "book", p)
}

type eventsData struct {
	Stats     model.Stats
	Locations []model.Location
}

func (h *PageHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	h.render(w, r, http.StatusOK, "events",
		h.page(r, "events", h.bundle.T(l, "events.title"), h.bundle.T(l, "events.description"), eventsData{
			Stats:     h.catalog.Stats(),
			Locations: model.Locations,
		}))
}

type joinData struct {
	// Location is "" until the reader picks one.
	Location  model.Location
	Locations []model.Location
	Referrals []model.Referral
	MinAge    int
	MaxAge    int
}

// HandleJoinUs renders the signup form for ?location=TW|NL, or the
// location chooser when the value is missing or unknown.
func (h *PageHandler) HandleJoinUs(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	loc, _ := model.ParseLocation(r.URL.Query().Get("location"))
	h.render(w, r, http.StatusOK, "joinus",
		h.page(r, "joinus", h.bundle.T(l, "joinus.title"), h.bundle.T(l, "joinus.description"), joinData{
			Location:  loc,
			Locations: model.Locations,
			Referrals: model.Referrals,
			MinAge:    model.MinAge,
			MaxAge:    model.MaxAge,
		}))
}

func (h *PageHandler) HandlePrivacy(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	h.render(w, r, http.StatusOK, "privacy",
		h.page(r, "", h.bundle.T(l, "privacy.title"), h.bundle.T(l, "privacy.description"), nil))
}

func (h *PageHandler) HandleTerms(w http.ResponseWriter, r *http.Request) {
	l := i18n.FromContext(r.Context())
	h.render(w, r, http.StatusOK, "terms",
		h.page(r, "", h.bundle.T(l, "terms.title"), h.bundle.T(l, "terms.description"), nil))
}

// HandleNotFound renders the localized 404 page. API paths get a JSON body.
func (h *PageHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: apperror.CodeNotFound, Message: "Not found"})
		return
	}
	l := i18n.FromContext(r.Context())
	h.render(w, r, http.StatusNotFound, "notfound",
		h.page(r, "", h.bundle.T(l, "notFound.title"), h.bundle.T(l, "notFound.description"), nil))
}

// Mount registers every page on r. The server mounts it at the root and
// again under each locale prefix.
func (h *PageHandler) Mount(r chi.Router) {
	r.Get("/", h.HandleHome)
	r.Get("/about", h.HandleAbout)
	r.Get("/books", h.HandleBooks)
	r.Get("/books/{slug}", h.HandleBook)
	r.Get("/events", h.HandleEvents)
	r.Get("/joinus", h.HandleJoinUs)
	r.Get("/privacy", h.HandlePrivacy)
	r.Get("/terms", h.HandleTerms)
}
