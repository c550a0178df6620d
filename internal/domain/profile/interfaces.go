package profile

import "context"

// Repository persists the profile registry.
type Repository interface {
	Load(ctx context.Context) (*Registry, error)
	Save(ctx context.Context, reg *Registry) error
}
