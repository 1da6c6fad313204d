package core

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	requestIDKey contextKey = "request-id"
	productKey   contextKey = "product"
)

// WithRequestID returns a new context with the request ID attached.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithProduct returns a new context carrying the name of the product a
// request was routed to.
func WithProduct(ctx context.Context, product string) context.Context {
	return context.WithValue(ctx, productKey, product)
}

// GetProduct retrieves the product name from the context.
func GetProduct(ctx context.Context) string {
	if v, ok := ctx.Value(productKey).(string); ok {
		return v
	}
	return ""
}
