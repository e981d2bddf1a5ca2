package auth

import (
	"context"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches the authenticated principal to the context.
func WithPrincipal(ctx context.Context, p campaign.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom retrieves the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (campaign.Principal, bool) {
	p, ok := ctx.Value(principalKey).(campaign.Principal)
	return p, ok && !p.IsZero()
}
