package daemon

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"

	"trackbridge/internal/logging"
	"trackbridge/internal/services"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware stamps each request with a correlation id, reusing a
// caller-supplied one when it looks sane.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// logRequest is the access log formatter. Output goes to slog, not the writer.
func (s *apiServer) logRequest(_ io.Writer, params handlers.LogFormatterParams) {
	level := slog.LevelInfo
	switch {
	case params.URL.Path == "/health":
		level = slog.LevelDebug
	case params.StatusCode >= http.StatusInternalServerError:
		level = slog.LevelWarn
	}
	attrs := []logging.Attr{
		logging.String("method", params.Request.Method),
		logging.String("path", params.URL.Path),
		logging.Int("status", params.StatusCode),
		logging.Int("bytes", params.Size),
		logging.Duration("duration", time.Since(params.TimeStamp)),
		logging.String(logging.FieldCorrelationID, params.Request.Header.Get(requestIDHeader)),
		logging.String(logging.FieldEventType, "http_request"),
	}
	s.log().Log(params.Request.Context(), level, "http request", logging.Args(attrs...)...)
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	logging.ErrorWithContext(l.logger, "handler panic recovered", "http_panic",
		logging.String("panic", strings.TrimSpace(fmt.Sprintln(v...))),
		logging.String(logging.FieldErrorHint, "report the request that triggered the panic"),
	)
}
