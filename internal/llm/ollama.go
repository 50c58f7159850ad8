package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/resubmit/internal/util"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider classifies denials with a local model over the Ollama
// generate API
type OllamaProvider struct {
	baseURL string
	client  *http.Client
	config  Config
}

type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Format  string          `json:"format,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NewOllamaProvider creates an Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	base := config.BaseURL
	if base == "" {
		base = defaultOllamaURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(base, "/"),
		client: &http.Client{
			// Local models are slow to load on first use
			Timeout: config.timeout(60 * time.Second),
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string { return "ollama" }

// Classify asks the model for a retryability estimate in JSON mode
func (p *OllamaProvider) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResponse, error) {
	c := p.config.call(req, "")
	if c.model == "" {
		return nil, errors.New("ollama: model must be set (e.g. llama3.1:8b)")
	}

	resp, err := p.generate(ctx, generateRequest{
		Model:   c.model,
		System:  systemPrompt,
		Prompt:  c.prompt,
		Format:  "json",
		Options: generateOptions{Temperature: 0, NumPredict: c.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}

	text := strings.TrimSpace(resp.Response)
	prob, rationale, err := ParseClassification(text)
	if err != nil {
		return nil, err
	}

	// Some models report no counts; estimate at four bytes per token
	tokens := resp.PromptEvalCount + resp.EvalCount
	if tokens == 0 {
		tokens = (len(c.prompt) + len(text)) / 4
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &ClassifyResponse{RetryableProbability: prob, Rationale: rationale, Model: model, TokensUsed: tokens}, nil
}

func (p *OllamaProvider) generate(ctx context.Context, body generateRequest) (*generateResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)
	if res.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("status %d: %s", res.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode response: %w", decodeErr)
	}
	return &out, nil
}
