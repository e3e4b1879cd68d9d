package authcore

import (
	"context"

	"github.com/aqryuz/authcore/fingerprint"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for device fingerprints, session location and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithClient attaches both parts of c.
func WithClient(ctx context.Context, c fingerprint.Context) context.Context {
	return WithUserAgent(WithClientIP(ctx, c.IP), c.UserAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func clientFromContext(ctx context.Context) fingerprint.Context {
	return fingerprint.Context{
		UserAgent: userAgentFromContext(ctx),
		IP:        clientIPFromContext(ctx),
	}
}
