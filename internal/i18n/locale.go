// Package i18n resolves the reader's locale and prints localized messages.
//
// The site speaks two locales: English (the default, served at unprefixed
// paths) and Traditional Chinese (served under /zh). A reader's choice is
// remembered in the "locale" cookie.
package i18n

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Locale is a supported site locale.
type Locale string

const (
	English Locale = "en"
	Chinese Locale = "zh"

	Default = English
)

// Supported lists every locale in toggle order.
var Supported = []Locale{English, Chinese}

const (
	// CookieName stores the reader's locale preference.
	CookieName = "locale"
	// QueryParam selects a locale for one request and persists it.
	QueryParam = "lang"

	cookieMaxAge = 365 * 24 * time.Hour
)

// Parse returns the locale for s, which must be exactly "en" or "zh".
func Parse(s string) (Locale, bool) {
	switch Locale(s) {
	case English, Chinese:
		return Locale(s), true
	}
	return "", false
}

// Tag returns the x/text language tag used for message lookup and number
// formatting.
func (l Locale) Tag() language.Tag {
	if l == Chinese {
		return language.TraditionalChinese
	}
	return language.English
}

// HTMLLang is the value of the <html lang> attribute.
func (l Locale) HTMLLang() string {
	if l == Chinese {
		return "zh-Hant"
	}
	return "en"
}

// OGLocale is the Open Graph og:locale value.
func (l Locale) OGLocale() string {
	if l == Chinese {
		return "zh_TW"
	}
	return "en_US"
}

func (l Locale) IsEnglish() bool { return l != Chinese }

// Resolve picks a locale from the cookie value and the Accept-Language
// header: a supported cookie wins, then any header mentioning "zh",
// then English.
func Resolve(cookie, acceptLanguage string) Locale {
	if l, ok := Parse(cookie); ok {
		return l
	}
	if strings.Contains(acceptLanguage, "zh") {
		return Chinese
	}
	return Default
}

// LocalizePath prefixes path for l. English paths stay unprefixed.
func LocalizePath(l Locale, path string) string {
	path = StripPrefix(path)
	if l != Chinese {
		return path
	}
	if path == "/" {
		return "/zh"
	}
	return "/zh" + path
}

// StripPrefix removes a leading /en or /zh segment, always returning a
// rooted path.
func StripPrefix(path string) string {
	if path == "" {
		return "/"
	}
	for _, l := range Supported {
		p := "/" + string(l)
		if path == p {
			return "/"
		}
		if strings.HasPrefix(path, p+"/") {
			return path[len(p):]
		}
	}
	return path
}

// PathLocale returns the locale named by the first path segment, if any.
func PathLocale(path string) (Locale, bool) {
	for _, l := range Supported {
		p := "/" + string(l)
		if path == p || strings.HasPrefix(path, p+"/") {
			return l, true
		}
	}
	return "", false
}

// SetCookie persists l on the response for a year.
func SetCookie(w http.ResponseWriter, l Locale) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    string(l),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

// WithLocale stores l in ctx.
func WithLocale(ctx context.Context, l Locale) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request locale, or Default.
func FromContext(ctx context.Context) Locale {
	if l, ok := ctx.Value(ctxKey{}).(Locale); ok {
		return l
	}
	return Default
}

// Middleware resolves the request locale and stores it in the context.
//
// Precedence: a /en or /zh path prefix, then ?lang= (which is also
// persisted as the cookie), then Resolve on the cookie and header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l, ok := PathLocale(r.URL.Path)
		if !ok {
			if q, qok := Parse(r.URL.Query().Get(QueryParam)); qok {
				l = q
				SetCookie(w, l)
			} else {
				var cookie string
				if c, err := r.Cookie(CookieName); err == nil {
					cookie = c.Value
				}
				l = Resolve(cookie, r.Header.Get("Accept-Language"))
			}
		}
		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), l)))
	})
}
