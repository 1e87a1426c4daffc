// Package config loads and validates the immutable runtime configuration.
// Configuration is read once at startup from a YAML directory, expanded
// against the environment, merged over built-in defaults and passed
// explicitly to every component.
package config

// Config is the umbrella configuration object returned by Initialize().
type Config struct {
	configDir string

	System    *SystemConfig    `yaml:"system"`
	Queue     *QueueConfig     `yaml:"queue"`
	Discovery *DiscoveryConfig `yaml:"discovery"`
	Pipeline  *PipelineConfig  `yaml:"pipeline"`
	Publish   *PublishConfig   `yaml:"publish"`
	Storage   *StorageConfig   `yaml:"storage"`
	Scheduler *SchedulerConfig `yaml:"scheduler"`
	Autopilot *AutopilotConfig `yaml:"autopilot"`
	LLM       *LLMConfig       `yaml:"llm"`
	Redis     *RedisConfig     `yaml:"redis"`
}

// SystemConfig groups system-wide settings.
type SystemConfig struct {
	// Autopilot elevates the sentinel from "scan only" to
	// "scan + build + publish".
	Autopilot bool `yaml:"autopilot"`

	// PublicBaseURL is the base URL used to resolve local output files
	// to static-served URLs.
	PublicBaseURL string `yaml:"public_base_url"`

	// OutputsDir is the local directory render jobs write to.
	OutputsDir string `yaml:"outputs_dir"`
}

// RedisConfig holds cache connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
