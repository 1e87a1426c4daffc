package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reelforge/reelforge/pkg/config"
)

// Resolver turns stored refs into fetchable URLs: object refs get a
// pre-signed URL, local paths are served from the public base URL, and
// already-absolute URLs pass through.
type Resolver struct {
	store      ObjectStore
	publicBase string
	cfg        *config.StorageConfig
}

// NewResolver builds a resolver. store may be nil when no object store is
// configured; object refs then fail to resolve.
func NewResolver(store ObjectStore, publicBase string, cfg *config.StorageConfig) *Resolver {
	return &Resolver{store: store, publicBase: strings.TrimRight(publicBase, "/"), cfg: cfg}
}

// Resolve returns a URL a publisher or API consumer can fetch ref from.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if _, key, ok := ParseObjectRef(ref); ok {
		if r.store == nil {
			return "", fmt.Errorf("ref %q requires an object store, none configured", ref)
		}
		return r.store.Presign(ctx, key, r.cfg.PresignTTL)
	}
	if r.publicBase == "" {
		// Local path consumed directly by an in-process component.
		return ref, nil
	}
	return r.publicBase + "/" + filepath.Base(ref), nil
}
