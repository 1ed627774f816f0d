package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/auth"
	"github.com/cortexops/gateway/pkg/metrics"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxUserClaims
	ctxAPIKey
	ctxInternalClaims
)

// RequestID returns the request id assigned by the tracking middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// statusRecorder captures the response status for tracking and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// tracking assigns a request id, records the request in the tracker,
// and observes the plane metrics.
func (s *Server) tracking(plane string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := s.tracker.Begin(r)
			timer := metrics.NewTimer()

			w.Header().Set("X-Request-ID", requestID)
			w.Header().Set("X-Gateway-Timestamp", time.Now().UTC().Format(time.RFC3339))

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
			next.ServeHTTP(rec, r.WithContext(ctx))

			s.tracker.End(requestID, rec.status, "")
			metrics.RequestsTotal.WithLabelValues(plane, r.Method, statusLabel(rec.status)).Inc()
			timer.ObserveDuration(metrics.RequestDuration.WithLabelValues(plane))
		})
	}
}

func statusLabel(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// ipLimiter applies a per-client-IP token bucket across all planes.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ipLimiter) allow(clientIP string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[clientIP]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[clientIP] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			clientIP = host
		}
		if !l.allow(clientIP) {
			apierror.Write(w, apierror.RateLimited("too many requests", time.Now().Add(time.Second)), RequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userAuth verifies the frontend-plane JWT. Login and registration are
// exempt so users can obtain a token in the first place.
func (s *Server) userAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if exemptFromUserAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			apierror.Write(w, apierror.New(apierror.KindAuthenticationFailed, "missing bearer token"), RequestID(r.Context()))
			return
		}
		claims, err := s.tokens.Verify(token, auth.TypeAccess)
		if err != nil {
			apierror.Write(w, err, RequestID(r.Context()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func exemptFromUserAuth(path string) bool {
	return strings.HasSuffix(path, "/auth/login") || strings.HasSuffix(path, "/auth/register")
}

// apiKeyAuth verifies the v1-plane key id + secret pair, including the
// key's hourly rate budget.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyID, secret, ok := auth.ExtractCredentials(r)
		if !ok {
			apierror.Write(w, apierror.New(apierror.KindAuthenticationFailed, "missing api key credentials"), RequestID(r.Context()))
			return
		}
		key, err := s.keys.Verify(keyID, secret)
		if err != nil {
			apierror.Write(w, err, RequestID(r.Context()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxAPIKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// internalAuth verifies the system-plane service token, taken from
// X-Internal-Token or an Authorization header with the Internal scheme.
func (s *Server) internalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Internal-Token")
		if token == "" {
			token = internalSchemeToken(r)
		}
		if token == "" {
			apierror.Write(w, apierror.New(apierror.KindAuthenticationFailed, "missing internal token"), RequestID(r.Context()))
			return
		}
		claims, err := s.internal.Verify(token)
		if err != nil {
			apierror.Write(w, err, RequestID(r.Context()))
			return
		}
		ctx := context.WithValue(r.Context(), ctxInternalClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

// internalSchemeToken extracts a token sent as "Authorization: Internal
// <token>". Bearer is reserved for user JWTs and API keys.
func internalSchemeToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Internal ") {
		return strings.TrimPrefix(authz, "Internal ")
	}
	return ""
}

// authorize checks the caller's grants against the permission required
// for the resolved route. Identity comes from whichever verifier ran.
func (s *Server) authorize(r *http.Request, required string) error {
	ctx := r.Context()

	if claims, ok := ctx.Value(ctxUserClaims).(*auth.UserClaims); ok {
		if s.rbac.Check(claims.Roles, claims.Permissions, required) {
			return nil
		}
		return apierror.Newf(apierror.KindPermissionDenied, "missing permission %s", required)
	}
	if key, ok := ctx.Value(ctxAPIKey).(*auth.APIKey); ok {
		if key.HasPermission(required) {
			return nil
		}
		return apierror.Newf(apierror.KindPermissionDenied, "api key lacks permission %s", required)
	}
	if claims, ok := ctx.Value(ctxInternalClaims).(*auth.InternalClaims); ok {
		if claims.HasPermission(required) {
			return nil
		}
		return apierror.Newf(apierror.KindPermissionDenied, "service lacks permission %s", required)
	}
	return apierror.New(apierror.KindAuthenticationFailed, "no credentials")
}

// requiredPermission maps a route prefix and method to a permission
// name, read for safe methods and write otherwise.
func requiredPermission(prefix, method string) string {
	action := "write"
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		action = "read"
	}
	return prefix + ":" + action
}
