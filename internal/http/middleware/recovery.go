package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/danielgtaylor/huma/v2"
)

// Recovery logs a handler panic with its stack and answers with the same
// problem document huma returns for other 500s.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				// net/http aborts the response silently for this sentinel
				if err, ok := v.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(v)
				}

				requestID := GetRequestID(r.Context())
				logger.ErrorContext(r.Context(), "handler panicked",
					slog.Any("panic", v),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", requestID),
					slog.String("stack", string(debug.Stack())),
				)

				problem := &huma.ErrorModel{
					Title:    http.StatusText(http.StatusInternalServerError),
					Status:   http.StatusInternalServerError,
					Detail:   "request " + requestID + " failed unexpectedly",
					Instance: r.URL.Path,
				}
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(problem.Status)
				_ = json.NewEncoder(w).Encode(problem)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
