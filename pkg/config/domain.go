package config

import "time"

// DiscoveryConfig controls the aggregator and sentinel behavior.
type DiscoveryConfig struct {
	// CacheTTL bounds trend cache freshness.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// AdapterTimeout is the per-adapter fan-out deadline.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`

	// FanoutDeadline bounds the whole fan-out; slow adapters are dropped.
	FanoutDeadline time.Duration `yaml:"fanout_deadline"`

	// RankTopN is how many top-by-views candidates are sent to the ranker.
	RankTopN int `yaml:"rank_top_n"`

	// MinCandidatesForRank is the minimum candidate count before the
	// ranker is consulted at all.
	MinCandidatesForRank int `yaml:"min_candidates_for_rank"`

	// SearchLiveThreshold triggers a live aggregation when a store search
	// returns fewer rows than this.
	SearchLiveThreshold int `yaml:"search_live_threshold"`

	// Feeds declares the platform feed adapters to register.
	Feeds []FeedConfig `yaml:"feeds"`
}

// FeedConfig declares one platform feed adapter.
type FeedConfig struct {
	Platform  string `yaml:"platform"`
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// DefaultDiscoveryConfig returns the built-in discovery defaults.
func DefaultDiscoveryConfig() *DiscoveryConfig {
	return &DiscoveryConfig{
		CacheTTL:             time.Hour,
		AdapterTimeout:       15 * time.Second,
		FanoutDeadline:       45 * time.Second,
		RankTopN:             15,
		MinCandidatesForRank: 3,
		SearchLiveThreshold:  10,
	}
}

// PipelineConfig controls the transformation pipeline.
type PipelineConfig struct {
	// OCRFrameStride samples one frame out of every stride for on-screen
	// text detection.
	OCRFrameStride int `yaml:"ocr_frame_stride"`

	// OCRBin names the OCR binary used for caption placement; "off"
	// disables frame scanning (captions keep the bottom default).
	OCRBin string `yaml:"ocr_bin"`

	// BRollMaxResults bounds the stock fetch per keyword.
	BRollMaxResults int `yaml:"b_roll_max_results"`

	// FontPath is the caption font file; empty resolves the engine default.
	FontPath string `yaml:"font_path"`

	// WhisperModel selects the transcription model; empty disables
	// transcription (clips render without captions).
	WhisperModel string `yaml:"whisper_model"`

	// PexelsAPIKeyEnv names the env var holding the stock footage API key;
	// empty disables B-roll overlays.
	PexelsAPIKeyEnv string `yaml:"pexels_api_key_env"`
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		OCRFrameStride:  30,
		OCRBin:          "tesseract",
		BRollMaxResults: 5,
		WhisperModel:    "base",
	}
}

// PublishConfig controls the upload state machines.
type PublishConfig struct {
	// ChunkRetries is R, the per-chunk retry budget.
	ChunkRetries int `yaml:"chunk_retries"`

	// ChunkTimeout bounds a single chunk PUT.
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`

	// TokenRefreshWindow refreshes tokens expiring inside this window
	// before any outbound call.
	TokenRefreshWindow time.Duration `yaml:"token_refresh_window"`

	// Platforms configures the per-platform upload endpoints.
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

// PlatformConfig declares one platform's upload protocol and endpoints.
type PlatformConfig struct {
	// Protocol selects the upload state machine: "chunked" or "resumable".
	Protocol string `yaml:"protocol"`

	// InitURL is the upload init/session endpoint.
	InitURL string `yaml:"init_url"`

	// PostURLBase prefixes the returned video id to form the public URL
	// (resumable protocol only).
	PostURLBase string `yaml:"post_url_base"`

	// TokenURL is the OAuth refresh endpoint.
	TokenURL string `yaml:"token_url"`

	// ClientIDEnv and ClientSecretEnv name the env vars carrying the OAuth
	// client credentials.
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

// DefaultPublishConfig returns the built-in publish defaults.
func DefaultPublishConfig() *PublishConfig {
	return &PublishConfig{
		ChunkRetries:       3,
		ChunkTimeout:       30 * time.Second,
		TokenRefreshWindow: 60 * time.Second,
		Platforms: map[string]PlatformConfig{
			"tiktok": {
				Protocol:        "chunked",
				InitURL:         "https://open.tiktokapis.com/v2/post/publish/video/init/",
				TokenURL:        "https://open.tiktokapis.com/v2/oauth/token/",
				ClientIDEnv:     "TIKTOK_CLIENT_KEY",
				ClientSecretEnv: "TIKTOK_CLIENT_SECRET",
			},
			"youtube": {
				Protocol:        "resumable",
				InitURL:         "https://www.googleapis.com/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status",
				PostURLBase:     "https://youtube.com/shorts/",
				TokenURL:        "https://oauth2.googleapis.com/token",
				ClientIDEnv:     "YOUTUBE_CLIENT_ID",
				ClientSecretEnv: "YOUTUBE_CLIENT_SECRET",
			},
		},
	}
}

// StorageConfig controls the storage lifecycle manager.
type StorageConfig struct {
	// ThresholdBytes is the outputs directory size that triggers
	// migration to the object store.
	ThresholdBytes int64 `yaml:"threshold_bytes"`

	// TargetRatio is the post-migration size target as a fraction of
	// ThresholdBytes.
	TargetRatio float64 `yaml:"target_ratio"`

	// RetentionDays removes object-store keys older than this.
	RetentionDays int `yaml:"retention_days"`

	// PresignTTL bounds generated pre-signed URLs.
	PresignTTL time.Duration `yaml:"presign_ttl"`

	// Bucket is the object store bucket name.
	Bucket string `yaml:"bucket"`

	// Region is the object store region.
	Region string `yaml:"region"`
}

// DefaultStorageConfig returns the built-in storage defaults.
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		ThresholdBytes: 140 << 30,
		TargetRatio:    0.8,
		RetentionDays:  90,
		PresignTTL:     time.Hour,
	}
}

// AutopilotConfig controls the autonomous discover-build-publish chain.
// It only takes effect when system.autopilot is true.
type AutopilotConfig struct {
	// Platform is the publish target for autopilot-built clips.
	Platform string `yaml:"platform"`

	// AccountHandle selects the account on Platform; empty uses the
	// platform's only stored credential.
	AccountHandle string `yaml:"account_handle"`

	// MaxPerSweep bounds how many candidates one niche sweep turns into
	// transform jobs.
	MaxPerSweep int `yaml:"max_per_sweep"`
}

// DefaultAutopilotConfig returns the built-in autopilot defaults.
func DefaultAutopilotConfig() *AutopilotConfig {
	return &AutopilotConfig{
		Platform:    "tiktok",
		MaxPerSweep: 1,
	}
}

// SchedulerConfig holds periodic task intervals.
type SchedulerConfig struct {
	NicheSweepInterval time.Duration `yaml:"niche_sweep_interval"`
	PostSweepInterval  time.Duration `yaml:"post_sweep_interval"`
	AuditInterval      time.Duration `yaml:"audit_interval"`
	StorageInterval    time.Duration `yaml:"storage_interval"`

	// PostClaimTTL bounds how long a claimed scheduled post may sit in
	// publishing before the sweep fails it as a dead claim.
	PostClaimTTL time.Duration `yaml:"post_claim_ttl"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		NicheSweepInterval: 4 * time.Hour,
		PostSweepInterval:  5 * time.Minute,
		AuditInterval:      24 * time.Hour,
		StorageInterval:    24 * time.Hour,
		PostClaimTTL:       30 * time.Minute,
	}
}

// LLMConfig configures the ranking/strategy model client.
type LLMConfig struct {
	// Provider selects the backend ("openai", "googleai", "fake").
	// Empty disables LLM assistance; ranking falls back to views and the
	// planner returns the default strategy.
	Provider string `yaml:"provider"`

	// Model is the provider-specific model name.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout bounds a single model call.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultLLMConfig returns the built-in LLM defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Timeout: 30 * time.Second,
	}
}

// Configured reports whether an LLM backend is available.
func (c *LLMConfig) Configured() bool {
	return c != nil && c.Provider != ""
}
