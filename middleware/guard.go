package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/aqryuz/authcore"
)

const (
	// HeaderTokenRefreshed is set to "true" when Guard renewed the token.
	HeaderTokenRefreshed = "X-Token-Refreshed"

	CodeUnauthorized   = "UNAUTHORIZED"
	CodeTokenExpired   = "TOKEN_EXPIRED"
	CodeTokenRevoked   = "TOKEN_REVOKED"
	CodeSessionExpired = "SESSION_EXPIRED"
	CodeSessionEnded   = "SESSION_ENDED"
	CodeForbidden      = "FORBIDDEN"
	CodeUnavailable    = "UNAVAILABLE"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the result stored by Guard.
func AuthResultFromContext(ctx context.Context) (*authcore.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*authcore.AuthResult)
	return res, ok
}

// ErrorBody is the JSON body of every rejection.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Guard authenticates the bearer token on every request.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
				return
			}

			ctx := withClient(r)
			res, err := engine.Authenticate(ctx, token)
			if err != nil {
				status, code, msg := classify(err)
				writeError(w, status, code, msg)
				return
			}

			if res.Renewed {
				w.Header().Set("Authorization", "Bearer "+res.Token)
				w.Header().Set(HeaderTokenRefreshed, "true")
			}

			ctx = context.WithValue(ctx, authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo attaches the caller's IP and User-Agent to the request context
// without authenticating it.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(withClient(r)))
	})
}

func withClient(r *http.Request) context.Context {
	return authcore.WithUserAgent(authcore.WithClientIP(r.Context(), remoteIP(r)), r.UserAgent())
}

// remoteIP uses RemoteAddr only. Proxies that rewrite it must be configured
// in front of this middleware.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, authcore.ErrSessionExpired):
		return http.StatusUnauthorized, CodeSessionExpired, "session expired"
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "token expired"
	case errors.Is(err, authcore.ErrTokenBlacklisted):
		return http.StatusUnauthorized, CodeTokenRevoked, "token revoked"
	case errors.Is(err, authcore.ErrSessionNotFound):
		return http.StatusUnauthorized, CodeSessionEnded, "session ended"
	case errors.Is(err, authcore.ErrStorageUnavailable), errors.Is(err, authcore.ErrEngineNotReady):
		return http.StatusServiceUnavailable, CodeUnavailable, "authentication unavailable"
	default:
		return http.StatusUnauthorized, CodeUnauthorized, "unauthorized"
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: msg, Code: code})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
