package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/facekit/facekit-agent/internal/logging"
	"github.com/facekit/facekit-agent/internal/store"
)

// AuthConfigKey is the config row holding the API bearer token.
const AuthConfigKey = "auth_token"

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

type requestIDKey struct{}

// RequestIDFrom returns the id RequestIDMiddleware attached to ctx, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

var defaultOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// CORS allows the local web UI to call the agent. An empty origin list
// falls back to loopback origins only.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range", requestIDHeader},
		ExposedHeaders:   []string{"Content-Range", requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// RequestIDMiddleware tags every request with an id, reusing a short
// printable X-Request-ID from the caller when one is sent.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !usableRequestID(id) {
				id = store.NewID()[:8]
			}
			w.Header().Set(requestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// AuthMiddleware requires "Authorization: Bearer <token>" matching the
// token stored under AuthConfigKey.
func AuthMiddleware(repo store.Repository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, problem := bearerToken(r.Header.Get("Authorization"))
			if problem != "" {
				WriteError(w, http.StatusUnauthorized, problem, "UNAUTHORIZED")
				return
			}

			want, err := repo.GetConfig(r.Context(), AuthConfigKey)
			switch {
			case err != nil || want == "":
				logger.Error("auth token unavailable", "error", err, "request_id", RequestIDFrom(r.Context()))
				WriteError(w, http.StatusInternalServerError, "auth configuration error", "INTERNAL_ERROR")
			case subtle.ConstantTimeCompare([]byte(presented), []byte(want)) != 1:
				logger.Warn("rejected bearer token",
					"provided", logging.SanitizeToken(presented),
					"path", r.URL.Path,
				)
				WriteError(w, http.StatusUnauthorized, "invalid token", "UNAUTHORIZED")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// bearerToken extracts the token from an Authorization header. problem is
// the client-facing reason when the header is unusable.
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization format"
	}
	return strings.TrimSpace(token), ""
}

// LoggingMiddleware logs one line per request. /health and /metrics log at
// debug; server errors log at error.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFrom(r.Context()),
			)
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					"panic", rec,
					"request_id", RequestIDFrom(r.Context()),
					"stack", string(debug.Stack()),
				)
				WriteError(w, http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}
