package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noah-isme/toko-sales/internal/common"
)

// FileSink configures the optional rotating log file.
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func (s FileSink) writer() io.Writer {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    s.MaxSizeMB,
		MaxBackups: s.MaxBackups,
		MaxAge:     s.MaxAgeDays,
		Compress:   true,
	}
}

// NewLogger builds the process logger. format "console" (or "text") writes
// human readable lines to stdout, anything else JSON. The file sink always
// receives JSON.
func NewLogger(format, level string, sink FileSink) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if file := sink.writer(); file != nil {
		out = zerolog.MultiLevelWriter(out, file)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

// RequestLogger writes one line per request: 5xx at error, 4xx at warn.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware logs after the handler chain returns. The caller is picked up
// from the context slot that the auth middleware fills further down.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, caller := common.WithCallerSlot(r.Context())
		rec := NewStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		status := rec.Status()
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = l.Logger.Error()
		case status >= http.StatusBadRequest:
			evt = l.Logger.Warn()
		default:
			evt = l.Logger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", routeOrPath(ctx, r)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int64("bytes", rec.BytesWritten())
		if id := middleware.GetReqID(ctx); id != "" {
			evt = evt.Str("request_id", id)
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		userID := caller.UserID
		if userID == 0 {
			userID, _ = common.UserID(ctx)
		}
		if userID > 0 {
			evt = evt.Int64("user_id", userID)
		}
		evt.Str("remote_ip", common.ClientIP(r)).Msg("http_request")
	})
}

func routeOrPath(ctx context.Context, r *http.Request) string {
	if route := RoutePatternFromContext(ctx); route != "" {
		return route
	}
	return r.URL.Path
}
