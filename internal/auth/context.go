package auth

import "context"

type contextKey string

const callerContextKey contextKey = "okrforge_caller"

// Caller holds the authenticated identity extracted from a bearer credential.
type Caller struct {
	// Subject is the credential's subject claim, used as the rate-limit and
	// audit key. It is never persisted.
	Subject string
}

func ContextWithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

func CallerFromContext(ctx context.Context) (*Caller, bool) {
	c, ok := ctx.Value(callerContextKey).(*Caller)
	return c, ok
}
