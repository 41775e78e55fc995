package storage

import (
	"context"
	"fmt"

	"github.com/RavenWorks247/AgroPredict/internal/config"
)

// NewStore opens the backend named by the configuration.
func NewStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.StorageMemory:
		return NewMemoryStore(), nil
	case config.StorageGCS:
		store, err := NewGCSStore(ctx, cfg.Bucket, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
