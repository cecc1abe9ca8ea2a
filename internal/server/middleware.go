package server

import (
	"context"
	"encoding/hex"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"crypto/rand"
)

// edgerpcCtxKey is the single context key under which RequestCtx is
// stored, so a handler reached through CoreMiddleware can look up the
// inbound request ID with one context.Value lookup rather than one per
// middleware that contributed data.
type edgerpcCtxKey struct{}

// RequestCtx is the per-request correlation data CoreMiddleware attaches
// to the request context. A WebSocket upgrade handler can pull the
// RequestID out of it and keep it for the lifetime of the resulting
// connection, so every frame the router drops or dispatches on that
// connection can be traced back to the HTTP request that opened it.
type RequestCtx struct {
	RequestID string
	StartTime time.Time
}

// GetRequestCtx retrieves the request context stashed by CoreMiddleware
// or WithRequestCtx. It returns nil if none was ever attached, which is
// the case for any handler not reached through this package's
// middleware (e.g. a WebSocket connection adopted onto a bare mux).
func GetRequestCtx(ctx context.Context) *RequestCtx {
	if v := ctx.Value(edgerpcCtxKey{}); v != nil {
		return v.(*RequestCtx)
	}
	return nil
}

// WithRequestCtx attaches rc to ctx under the package's context key.
// Exported so a transport that terminates the HTTP request itself (a
// WebSocket upgrade, in particular) can extend the correlation beyond
// the request/response cycle CoreMiddleware otherwise bounds it to.
func WithRequestCtx(ctx context.Context, rc *RequestCtx) context.Context {
	return context.WithValue(ctx, edgerpcCtxKey{}, rc)
}

var rwPool = sync.Pool{
	New: func() interface{} {
		return &edgerpcResponseWriter{}
	},
}

// edgerpcResponseWriter captures the status code and byte count of a
// response so LoggingMiddleware can report them without re-deriving
// them from the wrapped http.ResponseWriter.
type edgerpcResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	wroteHeader  bool
}

func (rw *edgerpcResponseWriter) reset(w http.ResponseWriter) {
	rw.ResponseWriter = w
	rw.statusCode = 200
	rw.bytesWritten = 0
	rw.wroteHeader = false
}

func (rw *edgerpcResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *edgerpcResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.statusCode = 200
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *edgerpcResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

var ridBufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, 8)
		return &b
	},
}

func fastRequestID() string {
	bp := ridBufPool.Get().(*[]byte)
	b := *bp
	rand.Read(b)
	var dst [16]byte
	hex.Encode(dst[:], b)
	ridBufPool.Put(bp)
	return string(dst[:])
}

// CoreMiddleware combines panic recovery, request-ID assignment, and
// structured access logging into one handler wrapping the health,
// readiness, and metrics endpoints. Unlike a generic web server, this
// process serves no static assets and sets no Link headers, so there is
// no early-hints concern to carry; the one thing worth propagating past
// the HTTP response is the request ID itself, which CoreMiddleware
// attaches to the request context via RequestCtx. Its pooled response
// writer does not implement http.Hijacker, so a WebSocket upgrade
// handler behind CoreMiddleware cannot complete the handshake;
// RequestIDMiddleware, which passes the writer through unwrapped, is the
// stage that can sit in front of one.
func CoreMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()

			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = fastRequestID()
				r.Header.Set("X-Request-ID", id)
			}
			w.Header().Set("X-Request-ID", id)

			start := time.Now()
			rc := &RequestCtx{RequestID: id, StartTime: start}
			r = r.WithContext(WithRequestCtx(r.Context(), rc))

			rw := rwPool.Get().(*edgerpcResponseWriter)
			rw.reset(w)

			next.ServeHTTP(rw, r)

			if logger.Enabled(r.Context(), slog.LevelInfo) {
				attrs := [7]slog.Attr{
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rw.statusCode),
					slog.Duration("duration", time.Since(start)),
					slog.Int("bytes", rw.bytesWritten),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", id),
				}
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs[:]...)
			}

			rwPool.Put(rw)
		})
	}
}

// RecoveryMiddleware is CoreMiddleware's panic-recovery stage, kept
// standalone for a handler that wants recovery without request-ID
// assignment or access logging.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"path", r.URL.Path,
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDMiddleware assigns or preserves X-Request-ID and attaches a
// RequestCtx to the request context, without recovery or logging.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = fastRequestID()
				r.Header.Set("X-Request-ID", id)
			}
			w.Header().Set("X-Request-ID", id)
			r = r.WithContext(WithRequestCtx(r.Context(), &RequestCtx{RequestID: id, StartTime: time.Now()}))
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs method, path, status, duration, byte count, and
// request ID (read back out of RequestCtx if a prior middleware set one,
// otherwise the raw header) for every request.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := rwPool.Get().(*edgerpcResponseWriter)
			rw.reset(w)
			start := time.Now()
			next.ServeHTTP(rw, r)
			if logger.Enabled(r.Context(), slog.LevelInfo) {
				id := r.Header.Get("X-Request-ID")
				if rc := GetRequestCtx(r.Context()); rc != nil {
					id = rc.RequestID
				}
				attrs := [7]slog.Attr{
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", rw.statusCode),
					slog.Duration("duration", time.Since(start)),
					slog.Int("bytes", rw.bytesWritten),
					slog.String("remote_addr", r.RemoteAddr),
					slog.String("request_id", id),
				}
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request", attrs[:]...)
			}
			rwPool.Put(rw)
		})
	}
}
