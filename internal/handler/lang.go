package handler

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/bookdigest/internal/i18n"
)

// HandleSwitchLocale stores the chosen locale and sends the reader back to
// the page they came from.
//
// HTTP: GET /lang/{locale}?next=/books
//
// next must be a local path. Anything else (another host, a scheme,
// a protocol-relative "//evil.example") falls back to the home page.
func (h *PageHandler) HandleSwitchLocale(w http.ResponseWriter, r *http.Request) {
	l, ok := i18n.Parse(chi.URLParam(r, "locale"))
	if !ok {
		h.HandleNotFound(w, r)
		return
	}
	i18n.SetCookie(w, l)

	target := i18n.LocalizePath(l, "/")
	if next, ok := localPath(r.URL.Query().Get("next")); ok {
		target = i18n.LocalizePath(l, next.Path)
		if next.RawQuery != "" {
			target += "?" + next.RawQuery
		}
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// localPath parses raw and accepts it only when it names a path on this
// site.
func localPath(raw string) (*url.URL, bool) {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return nil, false
	}
	return u, true
}
