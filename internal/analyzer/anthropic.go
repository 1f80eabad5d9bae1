package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aktagon/llmkit/anthropic/agents"
)

// outputSchema constrains the model to the Analysis shape
const outputSchema = `{
  "name": "document_analysis",
  "description": "Structured summary of a document",
  "schema": {
    "type": "object",
    "properties": {
      "summary": {"type": "string", "description": "Concise prose summary of the document"},
      "key_points": {"type": "array", "items": {"type": "string"}, "description": "The main findings or claims"}
    },
    "required": ["summary", "key_points"],
    "additionalProperties": false
  }
}`

// AnthropicAnalyzer implements Analyzer using an Anthropic chat agent
type AnthropicAnalyzer struct {
	agent *agents.ChatAgent
	cfg   Config
}

// NewAnthropicAnalyzer creates an analyzer backed by the Anthropic API
func NewAnthropicAnalyzer(cfg Config) (*AnthropicAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("analyzer API key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}

	agent, err := agents.New(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("creating chat agent: %w", err)
	}

	return &AnthropicAnalyzer{agent: agent, cfg: cfg}, nil
}

// Analyze runs the content through the agent and parses the schema-constrained
// JSON response.
func (a *AnthropicAnalyzer) Analyze(ctx context.Context, content, template string) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Source content:\n%s", content)

	response, err := a.agent.Chat(prompt, &agents.ChatOptions{
		SystemPrompt: strings.TrimSpace(template),
		Schema:       outputSchema,
		MaxTokens:    a.cfg.MaxTokens,
		Temperature:  a.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("agent chat: %w", err)
	}

	var analysis Analysis
	if err := json.Unmarshal([]byte(response.Text), &analysis); err != nil {
		return nil, fmt.Errorf("parsing analysis JSON: %w", err)
	}
	analysis.Raw = response.Text

	return &analysis, nil
}
