package zerotrust

import (
	"context"

	"github.com/travisdw72/onevault-api-sub003/pkg/validation"
)

type contextKey string

const (
	securityContextKey contextKey = "onevault.security_context"
	correlationIDKey   contextKey = "onevault.correlation_id"
)

// WithSecurityContext attaches the winning validation context for downstream
// handlers.
func WithSecurityContext(ctx context.Context, sc validation.SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey, sc)
}

func SecurityContextFromContext(ctx context.Context) (validation.SecurityContext, bool) {
	v := ctx.Value(securityContextKey)
	if v == nil {
		return validation.SecurityContext{}, false
	}
	sc, ok := v.(validation.SecurityContext)
	return sc, ok
}

func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey).(string); ok {
		return v
	}
	return ""
}
