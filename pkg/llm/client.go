// Package llm provides the narrow model-client surface used by the
// discovery ranker and the strategy planner. Both callers make one-shot,
// strict-JSON completions; streaming and tool use are not needed.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/reelforge/reelforge/pkg/config"
)

// Client generates a single completion for a prompt.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LangchainClient backs Client with a langchaingo model in JSON mode.
type LangchainClient struct {
	model   llms.Model
	timeout time.Duration
}

// New constructs a client from configuration. Returns (nil, nil) when no
// provider is configured; callers treat a nil client as "LLM disabled" and
// fall back per the degradation rules.
func New(cfg *config.LLMConfig) (*LangchainClient, error) {
	if !cfg.Configured() {
		return nil, nil
	}

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithModel(cfg.Model)}
		if cfg.APIKeyEnv != "" {
			key := os.Getenv(cfg.APIKeyEnv)
			if key == "" {
				return nil, nil
			}
			opts = append(opts, openai.WithToken(key))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return &LangchainClient{model: model, timeout: cfg.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Complete runs a single JSON-mode completion with the configured timeout.
func (c *LangchainClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt,
		llms.WithJSONMode(),
		llms.WithTemperature(0.2),
	)
	if err != nil {
		return "", fmt.Errorf("llm completion failed: %w", err)
	}
	return out, nil
}

// DecodeJSON parses a model response into dest, tolerating markdown code
// fences some providers wrap around JSON output.
func DecodeJSON(response string, dest any) error {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), dest); err != nil {
		return fmt.Errorf("malformed llm response: %w", err)
	}
	return nil
}
