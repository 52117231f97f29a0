package ports

import "context"

// Storage is durable string storage that survives a restart.
// Get returns core.ErrNotFound for absent keys.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
