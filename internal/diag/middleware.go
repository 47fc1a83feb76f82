package diag

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
)

// requestID tags each request with a random id, echoes it in the
// response, and logs the request line.
func requestID(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := make([]byte, 4)
			rand.Read(id)
			rid := hex.EncodeToString(id)

			w.Header().Set("X-Request-ID", rid)
			logger.Info("diag: request",
				"request_id", rid,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			next.ServeHTTP(w, r)
		})
	}
}

// secureHeaders sets the response headers a local read-only API still
// wants: no sniffing, no framing, no referrer leakage.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
