// Package publisher uploads finished clips to social platforms. Each
// platform implements the Publisher interface with its own upload state
// machine; the registry dispatches by platform name.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/reelforge/reelforge/pkg/models"
)

// Request describes one upload.
type Request struct {
	Platform      string
	AccountHandle string
	VideoPath     string
	Title         string
	Caption       string
	Tags          []string
}

// Result is a completed upload.
type Result struct {
	// PlatformPostID is the platform's identifier for the created post.
	PlatformPostID string

	// PostURL is the public URL of the post, when the platform exposes one.
	PostURL string
}

// Publisher uploads a clip to one platform.
type Publisher interface {
	Platform() string
	Publish(ctx context.Context, req Request) (*Result, error)
}

// UploadError carries the failure classification for a failed upload so
// callers can decide on retry and reporting.
type UploadError struct {
	Kind models.FailureKind
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed (%s): %v", e.Kind, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Errf builds a classified upload error.
func Errf(kind models.FailureKind, format string, args ...any) *UploadError {
	return &UploadError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from err, defaulting to transient.
func KindOf(err error) models.FailureKind {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	if errors.Is(err, context.Canceled) {
		return models.FailureCancelled
	}
	return models.FailureTransient
}

// Registry holds the configured publishers keyed by platform.
type Registry struct {
	publishers map[string]Publisher
}

// NewRegistry builds a registry from the given publishers.
func NewRegistry(publishers ...Publisher) *Registry {
	r := &Registry{publishers: make(map[string]Publisher, len(publishers))}
	for _, p := range publishers {
		r.publishers[p.Platform()] = p
	}
	return r
}

// Get returns the publisher for a platform.
func (r *Registry) Get(platform string) (Publisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, fmt.Errorf("no publisher registered for platform %q", platform)
	}
	return p, nil
}

// Platforms returns the registered platform names, sorted.
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
