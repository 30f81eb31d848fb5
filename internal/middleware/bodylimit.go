package middleware

import (
	"net/http"
)

// BodyLimit caps request bodies with http.MaxBytesReader. Reads past the
// limit fail with *http.MaxBytesError, which the submit handler reports as
// an invalid payload. Apply it before anything decodes the body.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
