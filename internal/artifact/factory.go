package artifact

import (
	"context"
	"fmt"
	"path/filepath"

	"modq-go/internal/config"
	"modq-go/internal/modq"
)

// NewArchiveFromConfig creates an ArtifactStore implementation based on the
// artifact config type. dataDir is used when no explicit directory is set.
func NewArchiveFromConfig(ctx context.Context, cfg config.ArtifactConfig, dataDir string) (modq.ArtifactStore, error) {
	switch cfg.Type {
	case "", "filesystem":
		dir := cfg.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "artifacts")
		}
		return NewFileSystemArchive(dir)
	case "s3":
		return NewS3Archive(ctx, cfg)
	case "memory":
		return NewMemoryArchive(), nil
	default:
		return nil, fmt.Errorf("unknown artifact store type: %s", cfg.Type)
	}
}
