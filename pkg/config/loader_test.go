package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))
	return dir
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.System.PublicBaseURL)
	assert.False(t, cfg.System.Autopilot)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, time.Hour, cfg.Discovery.CacheTTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestInitialize_UserValuesOverrideDefaults(t *testing.T) {
	dir := writeConfig(t, `
queue:
  worker_count: 2
system:
  public_base_url: "https://reels.example.com"
redis:
  addr: "redis.internal:6379"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Queue.WorkerCount)
	assert.Equal(t, "https://reels.example.com", cfg.System.PublicBaseURL)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Discovery.AdapterTimeout)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestInitialize_ExpandsEnvTemplates(t *testing.T) {
	t.Setenv("REELFORGE_TEST_REDIS", "redis.from-env:6379")
	dir := writeConfig(t, `
redis:
  addr: "{{.REELFORGE_TEST_REDIS}}"
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "redis.from-env:6379", cfg.Redis.Addr)
}

func TestInitialize_MalformedYAMLFails(t *testing.T) {
	dir := writeConfig(t, "queue: [not, a, mapping")

	_, err := Initialize(context.Background(), dir)
	assert.Error(t, err)
}

func TestInitialize_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "zero workers",
			yaml: "queue:\n  worker_count: -1\n",
			want: "worker_count",
		},
		{
			name: "adapter timeout above fanout deadline",
			yaml: "discovery:\n  adapter_timeout: 2m\n  fanout_deadline: 1m\n",
			want: "adapter_timeout",
		},
		{
			name: "target ratio out of range",
			yaml: "storage:\n  target_ratio: 1.5\n",
			want: "target_ratio",
		},
		{
			name: "negative threshold bytes",
			yaml: "storage:\n  threshold_bytes: -5\n",
			want: "threshold_bytes",
		},
		{
			name: "negative post claim ttl",
			yaml: "scheduler:\n  post_claim_ttl: -5m\n",
			want: "post_claim_ttl",
		},
		{
			name: "llm provider without model",
			yaml: "llm:\n  provider: openai\n",
			want: "llm.model",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfig(t, tt.yaml)
			_, err := Initialize(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitialize_AutopilotWithPlatform(t *testing.T) {
	dir := writeConfig(t, `
system:
  autopilot: true
autopilot:
  platform: tiktok
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, cfg.System.Autopilot)
	assert.Equal(t, "tiktok", cfg.Autopilot.Platform)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("REELFORGE_TEST_SECRET", "hunter2")

	out := ExpandEnv([]byte("password: {{.REELFORGE_TEST_SECRET}}"))
	assert.Equal(t, "password: hunter2", string(out))

	// Missing variables expand to empty, not an error.
	out = ExpandEnv([]byte("password: {{.REELFORGE_TEST_DOES_NOT_EXIST}}"))
	assert.Equal(t, "password: ", string(out))

	// Dollar signs and malformed templates pass through untouched.
	out = ExpandEnv([]byte("password: pa$$word"))
	assert.Equal(t, "password: pa$$word", string(out))
	out = ExpandEnv([]byte("broken: {{.unclosed"))
	assert.Equal(t, "broken: {{.unclosed", string(out))
}

func TestQueueConfig_TimeoutFor(t *testing.T) {
	cfg := DefaultQueueConfig()
	assert.Equal(t, cfg.DiscoveryTimeout, cfg.TimeoutFor("discovery"))
	assert.Equal(t, cfg.TransformTimeout, cfg.TimeoutFor("download_and_process"))
	assert.Equal(t, cfg.PublishTimeout, cfg.TimeoutFor("autopilot_publish"))
	assert.Equal(t, cfg.PublishTimeout, cfg.TimeoutFor("something_else"))
}
