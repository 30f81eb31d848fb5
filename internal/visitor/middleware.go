package visitor

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/bookdigest/internal/privacy"
)

// CookieName holds the signed visitor token.
const CookieName = "bd_visitor"

type contextKey string

const idKey contextKey = "visitorID"

// FromContext returns the visitor id stored by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(idKey).(string)
	return id, ok && id != ""
}

// WithID stores id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// Middleware reads the visitor cookie into the request context.
//
// When issue is true a browser without a valid cookie gets a new one.
// Crawlers never get a cookie. A nil signer turns the middleware into a
// pass-through.
func Middleware(s *Signer, issue bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if s == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(CookieName); err == nil {
				if id, err := s.Verify(c.Value); err == nil {
					next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
					return
				}
			}

			if !issue || r.Method != http.MethodGet || privacy.IsBot(r.UserAgent()) {
				next.ServeHTTP(w, r)
				return
			}

			id := NewID()
			token, err := s.Issue(id)
			if err != nil {
				logger.Error("issuing visitor cookie", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     CookieName,
				Value:    token,
				Path:     "/",
				MaxAge:   int(s.lifetime.Seconds()),
				HttpOnly: true,
				Secure:   isHTTPS(r),
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
