package shelfauth

import "context"

type clientIPContextKey struct{}

// DefaultClientIP is used as the rate-limit key when no client IP is attached.
const DefaultClientIP = "127.0.0.1"

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// as the rate-limit key for every entry point.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return DefaultClientIP
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	if ip == "" {
		return DefaultClientIP
	}
	return ip
}
