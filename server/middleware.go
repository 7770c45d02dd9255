package server

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares so that the first one is outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}

	return h
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID stored in the context by
// RequestIDMiddleware. Returns an empty string if no ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}

	return ""
}

// RequestIDConfig configures the Request ID middleware behaviour.
type RequestIDConfig struct {
	// HeaderName defaults to "X-Request-ID".
	HeaderName string

	// TrustIncoming reuses a request ID sent by the client.
	TrustIncoming bool
}

// RequestIDMiddleware returns a middleware that assigns every request a
// UUIDv7 request ID, exposes it on the response and stores it in the
// request context.
func RequestIDMiddleware(cfg RequestIDConfig) Middleware {
	headerName := cfg.HeaderName
	if headerName == "" {
		headerName = "X-Request-ID"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cfg.TrustIncoming {
				id = r.Header.Get(headerName)
			}

			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}

			r.Header.Set(headerName, id)
			w.Header().Set(headerName, id)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// RecoveryMiddleware returns a middleware that turns a panic in a handler
// into a 500 response and logs it with the stack trace.
func RecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}

				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				logger.ErrorContext(r.Context(), "panic in handler",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rv),
					slog.String("stack", string(debug.Stack())),
				)

				writeError(w, http.StatusInternalServerError, codeInternal, http.StatusText(http.StatusInternalServerError))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrInvalidMaxSize is returned when the body size limit is not positive.
var ErrInvalidMaxSize = errors.New("server: max body size must be greater than zero")

// RequestSizeLimitMiddleware returns a middleware that caps request bodies
// at maxBytes. Handlers that read past the limit respond with 413.
func RequestSizeLimitMiddleware(maxBytes int64) (Middleware, error) {
	if maxBytes <= 0 {
		return nil, ErrInvalidMaxSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}, nil
}

// JSONContentTypeMiddleware returns a middleware that rejects POST requests
// whose Content-Type is not application/json with 415.
func JSONContentTypeMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.ContentLength != 0 {
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || !strings.EqualFold(mediaType, "application/json") {
					writeError(w, http.StatusUnsupportedMediaType, codeUnsupportedMedia, "content type must be application/json")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowedOrigins is a list of exact origins or "*".
	AllowedOrigins []string

	// AllowedMethods defaults to GET and POST.
	AllowedMethods []string

	// AllowedHeaders defaults to Content-Type and X-Request-ID.
	AllowedHeaders []string

	// ExposeHeaders lists the headers the browser may expose to client code.
	ExposeHeaders []string

	// MaxAge is the preflight cache lifetime in seconds. Zero omits the
	// header.
	MaxAge int
}

// CORSMiddleware returns a middleware that sets CORS response headers for
// allowed origins and answers preflight requests with 204. Requests without
// an Origin header pass through untouched.
func CORSMiddleware(cfg CORSConfig) Middleware {
	wildcard := slices.Contains(cfg.AllowedOrigins, "*")

	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[strings.ToLower(o)] = struct{}{}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost}
	}

	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Request-ID"}
	}

	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, allowed := origins[strings.ToLower(origin)]
			if !wildcard && !allowed {
				if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
					w.WriteHeader(http.StatusForbidden)
					return
				}

				next.ServeHTTP(w, r)

				return
			}

			if wildcard {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}

				w.WriteHeader(http.StatusNoContent)

				return
			}

			if exposeHeaders != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			next.ServeHTTP(w, r)
		})
	}
}
