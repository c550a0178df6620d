package settings

import "context"

// Repository persists the settings blob.
type Repository interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
}
