package externaldata

import "context"

type correlationIDKey struct{}

// WithCorrelationID attaches a request correlation ID to ctx so every
// outgoing upstream provider call carries it as X-Correlation-ID, per
// SPEC_FULL §6. A no-op when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
