package auth

import (
	"context"
)

// Identity is the authenticated caller as asserted by the gateway:
// who they are, which workflow role they act in, and which faculty
// they belong to (empty for school-level roles).
type Identity struct {
	Subject   string
	Role      string
	FacultyID string
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
