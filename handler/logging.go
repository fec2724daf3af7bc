// file: handler/logging.go

package handler

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/themidix/GlucoCheckWebAPIv4/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		// the mux fills in Pattern; logging it keeps reset tokens out of the log
		path := r.URL.Path
		if r.Pattern != "" {
			path = r.Pattern
		}
		logger.Log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        path,
			"remote_addr": r.RemoteAddr,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Request handled")
	})
}
