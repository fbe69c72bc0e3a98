// logging.go — access log filevault через slog.
// Запись содержит статус, объём ответа, длительность и имя пользователя,
// если запрос прошёл JWT-аутентификацию.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// quietPaths — служебные endpoints, которые опрашиваются пробами и Prometheus.
// Успешные ответы на них пишутся на уровне DEBUG.
var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// accessEntry — изменяемая часть записи access log.
// Кладётся в контекст RequestLogger и заполняется JWTAuth.
type accessEntry struct {
	username string
}

type accessEntryKey struct{}

// noteUser сохраняет пользователя в записи access log текущего запроса.
func noteUser(ctx context.Context, username string) {
	if entry, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok {
		entry.username = username
	}
}

// statusRecorder запоминает статус и количество записанных байт.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (Flush при отдаче файлов).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestLogger возвращает middleware access log.
// Уровень: ERROR для 5xx, WARN для 4xx, иначе INFO (DEBUG для quietPaths).
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			entry := &accessEntry{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry)))

			level := accessLevel(r.URL.Path, rec.status)
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if entry.username != "" {
				attrs = append(attrs, slog.String("user", entry.username))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
