package obscontext

import "context"

type requestIDKey struct{}
type customerIDKey struct{}

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDKey{}).(string); ok {
		return value
	}
	return ""
}

// WithCustomerID stores the acting customer id on the context.
func WithCustomerID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, customerIDKey{}, id)
}

// CustomerIDFromContext returns the acting customer id, or "" when absent.
func CustomerIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(customerIDKey{}).(string); ok {
		return value
	}
	return ""
}
