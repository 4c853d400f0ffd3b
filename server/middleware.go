package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// HeaderRequestID carries the request id; inbound values are honored
// so callers can correlate across hops.
const HeaderRequestID = "X-Request-Id"

type contextKey int

const (
	requestIDKey contextKey = iota
	credentialKey
)

// requestID tags each request with an id, echoes it on the response,
// and writes the access log line once the handler returns.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		s.touch()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

		s.logger.Info("request served", map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  id,
		})
	})
}

// credential extracts the bearer token into the request context. No
// token is a valid state; the gate decides what anonymous callers may
// do.
func (s *Server) credential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
			ctx = context.WithValue(ctx, credentialKey, token)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func credentialFrom(ctx context.Context) string {
	cred, _ := ctx.Value(credentialKey).(string)
	return cred
}
