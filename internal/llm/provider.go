package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Provider classifies denial reasons with a language model
type Provider interface {
	// Name returns the provider name
	Name() string

	// Classify estimates how likely a denial is to be overturned by a corrected resubmission
	Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error)
}

// ClassifyRequest carries the denial context sent to the model. It never
// includes patient identifiers.
type ClassifyRequest struct {
	DenialCode     string
	DenialReason   string
	PayerID        string
	ProcedureCodes []string

	// Prompt overrides the default prompt
	Prompt string

	// Model overrides the configured model
	Model string

	MaxTokens int
}

// ClassifyResponse is the parsed model output
type ClassifyResponse struct {
	// RetryableProbability is in [0,1]
	RetryableProbability float64

	// Rationale is the model's one-sentence explanation
	Rationale string

	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, OpenAI-compatible gateways)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

const defaultMaxTokens = 200

// call is a request with provider defaults applied
type call struct {
	prompt    string
	model     string
	maxTokens int
}

func (c Config) call(req ClassifyRequest, fallbackModel string) call {
	out := call{prompt: req.Prompt, model: req.Model, maxTokens: req.MaxTokens}
	if out.prompt == "" {
		out.prompt = BuildPrompt(req)
	}
	if out.model == "" {
		out.model = c.Model
	}
	if out.model == "" {
		out.model = fallbackModel
	}
	if out.maxTokens == 0 {
		out.maxTokens = c.MaxTokens
	}
	if out.maxTokens == 0 {
		out.maxTokens = defaultMaxTokens
	}
	return out
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return fallback
}

const systemPrompt = "You are a medical billing analyst. You assess whether a denied insurance claim " +
	"can be corrected and resubmitted. Answer only with the requested JSON object."

// BuildPrompt constructs the default classification prompt
func BuildPrompt(req ClassifyRequest) string {
	var b strings.Builder
	b.WriteString("Classify this claim denial.\n\n")
	fmt.Fprintf(&b, "Denial code: %s\n", orUnknown(req.DenialCode))
	fmt.Fprintf(&b, "Denial reason: %s\n", orUnknown(req.DenialReason))
	fmt.Fprintf(&b, "Payer: %s\n", orUnknown(req.PayerID))
	if len(req.ProcedureCodes) > 0 {
		fmt.Fprintf(&b, "Procedure codes: %s\n", strings.Join(req.ProcedureCodes, ", "))
	}
	b.WriteString(`
A denial is retryable when a billing or documentation correction (missing modifier,
wrong NPI, missing prior authorization, incomplete form) would let the claim be paid.
It is not retryable when the service itself is not covered, the authorization has
expired, or the provider type is wrong.

Respond with JSON: {"retryable_probability": <number between 0 and 1>, "rationale": "<one sentence>"}`)
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

type classification struct {
	RetryableProbability *float64 `json:"retryable_probability"`
	Rationale            string   `json:"rationale"`
}

// ParseClassification extracts the JSON object from a model reply. Replies
// wrapped in prose or code fences are accepted; a missing or out-of-range
// probability is an error, never a guess.
func ParseClassification(text string) (float64, string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return 0, "", fmt.Errorf("no JSON object in model reply")
	}

	var c classification
	if err := json.Unmarshal([]byte(text[start:end+1]), &c); err != nil {
		return 0, "", fmt.Errorf("parse model reply: %w", err)
	}
	if c.RetryableProbability == nil {
		return 0, "", fmt.Errorf("model reply has no retryable_probability")
	}
	p := *c.RetryableProbability
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, "", fmt.Errorf("retryable_probability %v outside [0,1]", p)
	}
	return p, strings.TrimSpace(c.Rationale), nil
}
