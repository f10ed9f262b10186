package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

// OllamaConfig locates the local Ollama instance and vision model.
type OllamaConfig struct {
	BaseURL string
	Port    int
	Model   string
}

// NewAgent initializes and returns a new vision agent
func NewAgent(ctx context.Context, config OllamaConfig, logger *slog.Logger) (*agent.DefaultAgent, error) {
	// Check if Ollama is running
	tagsURL := fmt.Sprintf("%s:%d/api/tags", config.BaseURL, config.Port)
	if _, err := exec.Command("curl", "-s", tagsURL).Output(); err != nil {
		return nil, fmt.Errorf("ollama is not reachable at %s: %w", tagsURL, err)
	}

	// Set up Ollama provider
	opts := &ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: config.BaseURL,
		Port:    config.Port,
	}
	provider := ollama.NewProvider(opts)

	model := &types.Model{
		ID: config.Model,
	}
	provider.UseModel(ctx, model)

	// Create agent configuration
	agentConf := &agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: "You are a screen-recording analysis assistant. You read text from screenshots, filter out sensitive information, and answer strictly in the JSON format requested.",
	}

	// Initialize agent
	return agent.NewAgent(agentConf), nil
}
