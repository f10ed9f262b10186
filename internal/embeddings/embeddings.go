// Package embeddings turns chunk text into fixed-dimension vectors via
// the OpenAI embeddings API. Results are cached per content string so
// re-runs of an idempotent batch don't re-bill identical inputs.
package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/framegraph/framegraph/internal/retry"
)

// Config selects the embedding model and system-wide dimension.
type Config struct {
	APIKey    string
	Model     string
	Dimension int
}

// Service manages embedding generation and caching
type Service struct {
	client openai.Client
	model  string
	dim    int
	policy retry.Policy
	logger *slog.Logger
	cache  sync.Map // content -> []float32
}

// NewService builds a Service. All vectors it returns have exactly
// Config.Dimension entries.
func NewService(config Config, policy retry.Policy, logger *slog.Logger) *Service {
	return &Service{
		client: openai.NewClient(option.WithAPIKey(config.APIKey)),
		model:  config.Model,
		dim:    config.Dimension,
		policy: policy,
		logger: logger,
	}
}

// Model returns the configured model name, recorded on embedding rows.
func (s *Service) Model() string {
	return s.model
}

// Embed returns the vector for one content string.
func (s *Service) Embed(ctx context.Context, content string) ([]float32, error) {
	if cached, ok := s.cache.Load(content); ok {
		if vector, valid := cached.([]float32); valid {
			return vector, nil
		}
	}

	var vector []float32
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(content)},
			Model:      openai.EmbeddingModel(s.model),
			Dimensions: openai.Int(int64(s.dim)),
		})
		if err != nil {
			return fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return fmt.Errorf("embedding response carries no data")
		}

		raw := resp.Data[0].Embedding
		vector = make([]float32, len(raw))
		for i, v := range raw {
			vector[i] = float32(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(vector) != s.dim {
		return nil, fmt.Errorf("embedding has dimension %d, expected %d", len(vector), s.dim)
	}

	s.cache.Store(content, vector)
	return vector, nil
}
