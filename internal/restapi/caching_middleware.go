package restapi

import (
	"fmt"
	"net/http"
)

const noCache = "no-cache, no-store, must-revalidate"

// CacheControlMiddleware lets clients cache successful responses for
// durationSeconds. Arrivals change every poll, so zero (no caching) is the
// usual setting; errors are never cached.
func CacheControlMiddleware(durationSeconds int, next http.Handler) http.Handler {
	success := noCache
	if durationSeconds > 0 {
		success = fmt.Sprintf("public, max-age=%d", durationSeconds)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheControlWriter{ResponseWriter: w, success: success}, r)
	})
}

type cacheControlWriter struct {
	http.ResponseWriter
	success       string
	headerWritten bool
}

func (w *cacheControlWriter) WriteHeader(code int) {
	if !w.headerWritten {
		w.headerWritten = true
		value := noCache
		if code >= 200 && code < 300 {
			value = w.success
		}
		w.ResponseWriter.Header().Set("Cache-Control", value)
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
