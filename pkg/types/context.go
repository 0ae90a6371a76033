package types

import "context"

type contextKey string

const claimsContextKey contextKey = "user_claims"

// WithClaims returns a context carrying authenticated user claims
func WithClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts authenticated user claims from a context
func ClaimsFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*UserClaims)
	return claims, ok
}
