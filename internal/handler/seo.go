package handler

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// staticSitemap are the indexable pages besides the books.
var staticSitemap = []struct {
	path       string
	changeFreq string
	priority   string
}{
	{"/", "weekly", "1.0"},
	{"/books", "weekly", "0.9"},
	{"/events", "weekly", "0.9"},
	{"/about", "monthly", "0.7"},
}

// HandleSitemap lists the static pages and every book page.
//
// HTTP: GET /sitemap.xml
//
// A book's lastmod is its read date; undated books use today.
func (h *PageHandler) HandleSitemap(w http.ResponseWriter, r *http.Request) {
	books, err := h.catalog.AllBooks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	today := h.now().UTC().Format("2006-01-02")
	set := urlSet{XMLNS: sitemapNS, URLs: make([]sitemapURL, 0, len(staticSitemap)+len(books))}
	for _, p := range staticSitemap {
		loc := h.site.URL + p.path
		if p.path == "/" {
			loc = h.site.URL
		}
		set.URLs = append(set.URLs, sitemapURL{Loc: loc, LastMod: today, ChangeFreq: p.changeFreq, Priority: p.priority})
	}
	for _, b := range books {
		lastMod := today
		if t, ok := b.ReadTime(); ok {
			lastMod = t.Format("2006-01-02")
		}
		set.URLs = append(set.URLs, sitemapURL{
			Loc:        h.site.URL + "/books/" + b.Slug,
			LastMod:    lastMod,
			ChangeFreq: "monthly",
			Priority:   "0.8",
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		h.fail(w, r, fmt.Errorf("encoding sitemap: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Write([]byte(xml.Header))
	if _, err := w.Write(out); err != nil {
		h.logger.DebugContext(r.Context(), "writing sitemap", slog.String("error", err.Error()))
	}
}

// HandleRobots allows everything except the API.
//
// HTTP: GET /robots.txt
func (h *PageHandler) HandleRobots(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	b.WriteString("Disallow: /api/\n")
	fmt.Fprintf(&b, "\nSitemap: %s/sitemap.xml\n", h.site.URL)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(b.String()))
}
