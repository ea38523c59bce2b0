// Package filestore keeps the original uploaded document bytes so that
// ingestion can re-read them at any time (requeue, re-ingestion after edit).
package filestore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/askbase/askbase/internal/config"
)

type Store interface {
	Save(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

func New(cfg config.FileStoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "local":
		return newLocalStore(cfg.Dir)
	case "s3":
		return newS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported file store type: %s", cfg.Type)
	}
}
