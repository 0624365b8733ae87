package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/talkscope-team/talkscope/pkg/config"
)

// ArtifactStore persists the pipeline's artifacts: uploaded audio, raw
// prediction payloads, quintile reports and flat tables.
type ArtifactStore interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	PutBytes(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// New builds the artifact store selected by configuration.
func New(cfg *config.StorageConfig) (ArtifactStore, error) {
	switch cfg.Type {
	case "minio":
		return NewMinIOStore(cfg)
	case "local":
		return NewLocalStore(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
