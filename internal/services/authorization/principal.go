package authorization

import (
	"context"

	"github.com/mizutama/torii/internal/entities"
)

// PrincipalResolver supplies the identity a check runs on behalf of
type PrincipalResolver interface {
	// Current returns the principal attached to the request context, or nil
	// when the request is unauthenticated.
	Current(ctx context.Context) (*entities.Principal, error)

	// Resolve returns the principal with the given identifier, including its
	// role set when known.
	Resolve(ctx context.Context, id string) (*entities.Principal, error)
}

type principalContextKey struct{}

// WithPrincipal attaches a principal to the context
func WithPrincipal(ctx context.Context, principal *entities.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the principal attached to the context, if any
func PrincipalFromContext(ctx context.Context) (*entities.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*entities.Principal)
	return principal, ok && principal != nil
}

// ContextPrincipalResolver resolves principals from the request context.
// An explicitly named principal that is not the context principal resolves
// with an empty role set: only user-addressed and policy rules can then
// apply to it.
type ContextPrincipalResolver struct{}

// NewContextPrincipalResolver creates a new ContextPrincipalResolver
func NewContextPrincipalResolver() *ContextPrincipalResolver {
	return &ContextPrincipalResolver{}
}

func (r *ContextPrincipalResolver) Current(ctx context.Context) (*entities.Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, nil
	}
	return principal, nil
}

func (r *ContextPrincipalResolver) Resolve(ctx context.Context, id string) (*entities.Principal, error) {
	if principal, ok := PrincipalFromContext(ctx); ok && principal.ID == id {
		return principal, nil
	}
	return &entities.Principal{ID: id}, nil
}
