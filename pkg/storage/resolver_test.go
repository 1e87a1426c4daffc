package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/config"
)

type fakeObjectStore struct {
	uploads    map[string]string
	deleted    []string
	oldKeys    []string
	uploadErr  error
	presignFmt string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		uploads:    make(map[string]string),
		presignFmt: "https://signed.example.com/%s",
	}
}

func (s *fakeObjectStore) Upload(_ context.Context, key, localPath string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	s.uploads[key] = localPath
	return nil
}

func (s *fakeObjectStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return fmt.Sprintf(s.presignFmt, key), nil
}

func (s *fakeObjectStore) Delete(_ context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeObjectStore) ListOlderThan(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return s.oldKeys, nil
}

func TestResolver_PassesThroughURLs(t *testing.T) {
	r := NewResolver(nil, "", config.DefaultStorageConfig())

	for _, ref := range []string{"http://cdn.example.com/a.mp4", "https://cdn.example.com/a.mp4"} {
		got, err := r.Resolve(context.Background(), ref)
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
}

func TestResolver_PresignsObjectRefs(t *testing.T) {
	store := newFakeObjectStore()
	r := NewResolver(store, "", config.DefaultStorageConfig())

	got, err := r.Resolve(context.Background(), "s3://reels/outputs/reel_1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example.com/outputs/reel_1.mp4", got)
}

func TestResolver_ObjectRefWithoutStoreFails(t *testing.T) {
	r := NewResolver(nil, "", config.DefaultStorageConfig())

	_, err := r.Resolve(context.Background(), "s3://reels/outputs/reel_1.mp4")
	assert.Error(t, err)
}

func TestResolver_LocalPathUsesPublicBase(t *testing.T) {
	r := NewResolver(nil, "https://media.example.com/outputs/", config.DefaultStorageConfig())

	got, err := r.Resolve(context.Background(), "/data/outputs/reel_2.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/outputs/reel_2.mp4", got)
}

func TestResolver_LocalPathWithoutBasePassesThrough(t *testing.T) {
	r := NewResolver(nil, "", config.DefaultStorageConfig())

	got, err := r.Resolve(context.Background(), "/data/outputs/reel_3.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/data/outputs/reel_3.mp4", got)
}

func TestObjectRefRoundTrip(t *testing.T) {
	ref := ObjectRef("reels", "outputs/reel_4.mp4")
	assert.Equal(t, "s3://reels/outputs/reel_4.mp4", ref)

	bucket, key, ok := ParseObjectRef(ref)
	require.True(t, ok)
	assert.Equal(t, "reels", bucket)
	assert.Equal(t, "outputs/reel_4.mp4", key)

	_, _, ok = ParseObjectRef("/local/path.mp4")
	assert.False(t, ok)
	_, _, ok = ParseObjectRef("s3://bucketonly")
	assert.False(t, ok)
}
