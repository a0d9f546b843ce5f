package logging

import (
	"context"

	"github.com/google/uuid"
)

type invocationKey struct{}

// WithInvocationID returns ctx carrying id. Every record logged with the
// returned context carries it as invocation_id.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// NewInvocation returns ctx carrying a fresh random invocation id.
func NewInvocation(ctx context.Context) context.Context {
	return WithInvocationID(ctx, uuid.NewString())
}

// InvocationID returns the invocation id carried by ctx, or "".
func InvocationID(ctx context.Context) string {
	id, _ := ctx.Value(invocationKey{}).(string)
	return id
}
