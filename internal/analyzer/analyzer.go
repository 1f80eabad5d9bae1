package analyzer

import "context"

// DefaultTemplate is the system prompt used when no prompt file is configured
const DefaultTemplate = `You are a research assistant. Read the provided document and produce a
faithful summary for a reference library. Summarize the document's purpose,
method, and conclusions in a few paragraphs, then list its key points. Do not
speculate beyond the text.`

// Analysis is the structured result of analyzing one item's content
type Analysis struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Raw       string   `json:"-"`
}

// Analyzer produces an analysis of text content using a prompt template.
// Implementations must surface transport failures distinguishably enough for
// retry classification (status codes or recognizable message text).
type Analyzer interface {
	Analyze(ctx context.Context, content, template string) (*Analysis, error)
}

// Config contains analyzer configuration
type Config struct {
	APIKey      string
	MaxTokens   int
	Temperature float64
}
