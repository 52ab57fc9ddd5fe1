package modq

import (
	"image"
	"io"
	"time"
)

// ArtifactStore archives images produced during scanning: card crops, post
// previews and click-overlay diagnostics. Artifacts are liveness-tolerant
// state; losing one costs at worst a re-notification with a missing picture.
type ArtifactStore interface {
	// Put stores img as PNG under key.
	Put(key string, img image.Image) error

	// Open returns a reader over the stored PNG. The caller closes it.
	Open(key string) (io.ReadCloser, error)

	// Cleanup removes artifacts stored before cutoff. Returns the number
	// removed.
	Cleanup(cutoff time.Time) (int, error)
}
