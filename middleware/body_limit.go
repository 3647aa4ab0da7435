package middleware

import (
	"net/http"
)

// BodyLimit caps request body size. Upload payloads arrive base64-encoded in
// JSON, so the cap must leave headroom over the decoded file size limit.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				w.Write([]byte(`{"ok":false,"error":"request body too large"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
