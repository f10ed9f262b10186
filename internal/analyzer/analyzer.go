// Package analyzer wraps the vision LLM behind the narrow analyze
// interface: text (plus optional image) in, a well-formed filtered
// result out. It never returns a malformed result; on any failure it
// degrades to the documented defaults.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agent-api/core/pkg/agent"
)

// DegradedText is the filtered text reported when analysis fails or
// the frame carries no readable content.
const DegradedText = "No readable text"

// Analysis is the structured result of one frame analysis.
type Analysis struct {
	FilteredText          string   `json:"filtered_text"`
	ContainsSensitiveInfo bool     `json:"contains_sensitive_info"`
	SensitiveContentTypes []string `json:"sensitive_content_types"`
}

// Analyzer runs structured analysis through the vision agent.
type Analyzer struct {
	agent  *agent.DefaultAgent
	logger *slog.Logger
}

// New builds an Analyzer around an initialized agent.
func New(a *agent.DefaultAgent, logger *slog.Logger) *Analyzer {
	return &Analyzer{agent: a, logger: logger}
}

const analysisPrompt = `Below is OCR text extracted from one screen-recording frame.
Remove any sensitive information (credentials, tokens, personal data, financial details)
and respond with ONLY a JSON object of this exact shape:
{"filtered_text": "...", "contains_sensitive_info": false, "sensitive_content_types": []}

OCR text:
%s`

// Analyze runs the LLM over the OCR text (and the frame image when an
// image path is given). The returned Analysis is always well-formed:
// failures degrade to DegradedText with no sensitive-info flags.
func (a *Analyzer) Analyze(ctx context.Context, text, imagePath string) Analysis {
	content, err := a.run(ctx, fmt.Sprintf(analysisPrompt, text), imagePath)
	if err != nil {
		a.logger.Warn("analysis call failed, degrading", "error", err)
		return degraded()
	}

	analysis, err := parseAnalysis(content)
	if err != nil {
		a.logger.Warn("analysis response does not parse, degrading", "error", err)
		return degraded()
	}
	return analysis
}

func (a *Analyzer) run(ctx context.Context, input, imagePath string) (string, error) {
	if imagePath == "" {
		response := a.agent.Run(ctx, agent.WithInput(input))
		if err := response.Err; err != nil {
			return "", err
		}
		if len(response.Messages) == 0 {
			return "", fmt.Errorf("no response messages received from model")
		}
		return response.Messages[len(response.Messages)-1].Content, nil
	}

	response := a.agent.Run(ctx, agent.WithInput(input), agent.WithImagePath(imagePath))
	if err := response.Err; err != nil {
		return "", err
	}
	if len(response.Messages) == 0 {
		return "", fmt.Errorf("no response messages received from model")
	}
	return response.Messages[len(response.Messages)-1].Content, nil
}

func degraded() Analysis {
	return Analysis{
		FilteredText:          DegradedText,
		ContainsSensitiveInfo: false,
		SensitiveContentTypes: []string{},
	}
}

// parseAnalysis extracts the JSON object from the model's reply, which
// may be wrapped in prose or code fences.
func parseAnalysis(content string) (Analysis, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return Analysis{}, fmt.Errorf("no JSON object in response")
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(content[start:end+1]), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	if strings.TrimSpace(analysis.FilteredText) == "" {
		analysis.FilteredText = DegradedText
	}
	if analysis.SensitiveContentTypes == nil {
		analysis.SensitiveContentTypes = []string{}
	}
	return analysis, nil
}
