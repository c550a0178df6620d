package repository

import "context"

// KVStore is durable string storage keyed by name, used for extension
// storage. Get returns ErrNotFound for a missing key.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
