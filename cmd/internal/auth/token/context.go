package token

import "context"

type ctxKey struct{}

// NewContext returns a child context carrying verified claims.
func NewContext(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

// FromContext extracts the claims stored by NewContext.
func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(Claims)
	return claims, ok
}
