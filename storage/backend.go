// Package storage provides small key/value backends used to persist the
// SDK identity (API key, user id and profile) across process restarts.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/c360studio/feddy/config"
)

// Backend is a string key/value store.
// Get returns ErrNotFound for absent keys; Delete of an absent key is not an error.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNATS   = "nats"
)

// Open creates the backend selected by cfg.
func Open(ctx context.Context, cfg config.IdentityConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendFile, "":
		return OpenFileBackend(cfg.Path)
	case BackendSQLite:
		return OpenSQLiteBackend(ctx, cfg.Path)
	case BackendNATS:
		return DialKVBackend(ctx, cfg.NATSURL, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown identity backend %q", cfg.Backend)
	}
}
