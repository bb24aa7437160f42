package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/logger"
)

// WithRequestLogging logs method, path, status, size and duration of every request.
func WithRequestLogging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("request",
				zap.String(logger.FieldMethod, r.Method),
				zap.String(logger.FieldPath, r.URL.Path),
				zap.Int(logger.FieldStatus, status),
				zap.Int("size", ww.BytesWritten()),
				zap.Duration(logger.FieldDuration, time.Since(start)),
			)
		})
	}
}
