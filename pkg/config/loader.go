package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the main configuration file inside the config dir.
const ConfigFileName = "reelforge.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// The returned Config is immutable; components receive it explicitly.
//
// Steps performed:
//  1. Read reelforge.yaml (missing file ⇒ pure defaults)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Parse YAML
//  4. Merge user config over built-in defaults
//  5. Validate
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := defaults()
	cfg.configDir = configDir

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.Warn("No configuration file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		var user Config
		if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge configuration: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"autopilot", cfg.System.Autopilot,
		"workers", cfg.Queue.WorkerCount,
		"llm_configured", cfg.LLM.Configured())
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		System: &SystemConfig{
			PublicBaseURL: "http://localhost:8080",
			OutputsDir:    "outputs",
		},
		Queue:     DefaultQueueConfig(),
		Discovery: DefaultDiscoveryConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Publish:   DefaultPublishConfig(),
		Storage:   DefaultStorageConfig(),
		Scheduler: DefaultSchedulerConfig(),
		Autopilot: DefaultAutopilotConfig(),
		LLM:       DefaultLLMConfig(),
		Redis:     &RedisConfig{Addr: "localhost:6379"},
	}
}

func validate(cfg *Config) error {
	if cfg.Queue.WorkerCount < 1 {
		return fmt.Errorf("queue.worker_count must be >= 1, got %d", cfg.Queue.WorkerCount)
	}
	if cfg.Queue.MaxConcurrentJobs < 1 {
		return fmt.Errorf("queue.max_concurrent_jobs must be >= 1, got %d", cfg.Queue.MaxConcurrentJobs)
	}
	if cfg.Discovery.AdapterTimeout > cfg.Discovery.FanoutDeadline {
		return fmt.Errorf("discovery.adapter_timeout %v exceeds fanout_deadline %v",
			cfg.Discovery.AdapterTimeout, cfg.Discovery.FanoutDeadline)
	}
	if cfg.Storage.TargetRatio <= 0 || cfg.Storage.TargetRatio >= 1 {
		return fmt.Errorf("storage.target_ratio must be in (0,1), got %f", cfg.Storage.TargetRatio)
	}
	if cfg.Storage.ThresholdBytes <= 0 {
		return fmt.Errorf("storage.threshold_bytes must be positive")
	}
	if cfg.Scheduler.PostClaimTTL < 0 {
		return fmt.Errorf("scheduler.post_claim_ttl must not be negative, got %v", cfg.Scheduler.PostClaimTTL)
	}
	if cfg.System.OutputsDir == "" {
		return fmt.Errorf("system.outputs_dir must not be empty")
	}
	if cfg.System.Autopilot && cfg.Autopilot.Platform == "" {
		return fmt.Errorf("autopilot.platform required when system.autopilot is enabled")
	}
	if cfg.LLM.Configured() && cfg.LLM.Provider != "fake" {
		if cfg.LLM.Model == "" {
			return fmt.Errorf("llm.model required when llm.provider is set")
		}
		if cfg.LLM.APIKeyEnv != "" && os.Getenv(cfg.LLM.APIKeyEnv) == "" {
			slog.Warn("LLM API key env var is empty; LLM assistance will degrade to fallbacks",
				"env", cfg.LLM.APIKeyEnv)
		}
	}
	return nil
}
