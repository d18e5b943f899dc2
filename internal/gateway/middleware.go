package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// requestID assigns every request an ID, reusing a sane client-supplied one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestIDFrom returns the request ID stored by the gateway.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// accessInfo collects fields that inner handlers learn, such as the
// authenticated user, for the access log line written by instrument.
type accessInfo struct {
	userID string
}

type accessInfoKey struct{}

func setAccessUser(ctx context.Context, userID string) {
	if info, ok := ctx.Value(accessInfoKey{}).(*accessInfo); ok {
		info.userID = userID
	}
}

// instrument wraps every request in a span, records metrics and writes one
// access log line. The route label is the chi pattern, not the raw path.
func instrument(logger *slog.Logger, metrics *Metrics, tracer trace.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			info := &accessInfo{}
			ctx = context.WithValue(ctx, accessInfoKey{}, info)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			elapsed := time.Since(start)
			metrics.ObserveRequest(route, r.Method, status, elapsed)

			attrs := []any{
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", elapsed,
				"request_id", RequestIDFrom(r.Context()),
			}
			if info.userID != "" {
				attrs = append(attrs, "user_id", info.userID)
				span.SetAttributes(attribute.String("enduser.id", info.userID))
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

// rateLimit applies the per-user limit of kind. It must run after
// auth.Middleware.
func rateLimit(rl *security.RateLimiter, audit *security.AuditLogger, kind string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.UserFromContext(r.Context())
			if !ok {
				writeError(w, r, auth.ErrUnauthenticated)
				return
			}
			setAccessUser(r.Context(), user.ID)
			if err := rl.Allow(kind, user.ID); err != nil {
				audit.Log(security.AuditEvent{
					Type:      security.EventRateLimit,
					UserID:    user.ID,
					RequestID: RequestIDFrom(r.Context()),
					Detail:    kind,
				})
				w.Header().Set("Retry-After", "60")
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
