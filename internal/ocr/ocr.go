// Package ocr extracts raw text from frame images through the vision
// agent. Accuracy is the model's concern, not ours.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/agent-api/core/pkg/agent"
)

const prompt = "Extract ALL readable text from this image, exactly as it appears, top to bottom. Respond with the text only, no commentary. If there is no readable text respond with an empty string."

// Engine reads text out of images.
type Engine struct {
	agent  *agent.DefaultAgent
	logger *slog.Logger
}

// New builds an Engine around an initialized vision agent.
func New(a *agent.DefaultAgent, logger *slog.Logger) *Engine {
	return &Engine{agent: a, logger: logger}
}

// Text runs OCR over one image. The bytes are staged in a temp file
// because the agent takes image paths.
func (e *Engine) Text(ctx context.Context, image []byte) (string, error) {
	tmp, err := os.CreateTemp("", "frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to stage image for OCR: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to stage image for OCR: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to stage image for OCR: %w", err)
	}

	response := e.agent.Run(ctx,
		agent.WithInput(prompt),
		agent.WithImagePath(tmp.Name()),
	)
	if err := response.Err; err != nil {
		return "", fmt.Errorf("ocr call failed: %w", err)
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response messages received from model")
	}

	return strings.TrimSpace(response.Messages[len(response.Messages)-1].Content), nil
}
