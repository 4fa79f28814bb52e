package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/homecare-scheduler/pkg/logger"
)

// HTTPMiddleware records request metrics and structured request logs
func HTTPMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)

			wrapper := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := time.Since(start)
			RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(wrapper.statusCode), duration)
			log.WithRequestID(requestID).Debug("request handled")
			log.HTTPRequest(r.Method, r.URL.Path, r.RemoteAddr, wrapper.statusCode, duration.Milliseconds())
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
