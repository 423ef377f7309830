package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/opsvigil/vigil/pkg/config"
	"github.com/opsvigil/vigil/pkg/httputil"
)

// Reasoner obtains a natural-language justification for a detection. The
// returned text is expected to conform to the structured schema but callers
// must tolerate non-conformance.
type Reasoner interface {
	Reason(ctx context.Context, prompt string) (string, error)
}

// DefaultReasoningTemperature keeps classification output deterministic.
const DefaultReasoningTemperature = 0.1

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatReasoner calls an OpenAI-compatible chat-completions endpoint.
// Supported providers share the wire format and differ only in base URL and
// authentication.
type ChatReasoner struct {
	client      *http.Client
	provider    config.ReasoningProvider
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxRetries  int
}

// ReasonerConfig holds the settings for a ChatReasoner.
type ReasonerConfig struct {
	Provider    config.ReasoningProvider
	APIKey      string // Optional for Ollama
	Model       string
	BaseURL     string // Optional override; required for ProviderCustom
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int // Extra attempts after a transport failure
}

// NewChatReasoner creates a reasoner for the configured provider.
func NewChatReasoner(cfg ReasonerConfig) *ChatReasoner {
	if cfg.Model == "" {
		if cfg.Provider == config.ProviderOllama {
			cfg.Model = "qwen2.5:7b"
		} else {
			cfg.Model = "meta-llama/llama-3.3-70b-instruct:free"
		}
	}

	var baseURL string
	switch cfg.Provider {
	case config.ProviderOllama:
		baseURL = "http://localhost:11434/v1"
	case config.ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	case config.ProviderOpenAI:
		baseURL = "https://api.openai.com/v1"
	case config.ProviderCustom:
		baseURL = cfg.BaseURL
	case config.ProviderOpenRouter:
		fallthrough
	default:
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultReasoningTemperature
	}

	return &ChatReasoner{
		client:      httputil.NewClient(cfg.Timeout),
		provider:    cfg.Provider,
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: temperature,
		maxRetries:  cfg.MaxRetries,
	}
}

// Reason sends the prompt as a single user message and returns the raw
// completion text. Transport failures are retried up to MaxRetries times;
// the caller treats a final failure as fatal for the detection.
func (r *ChatReasoner) Reason(ctx context.Context, prompt string) (string, error) {
	if r.provider != config.ProviderOllama && r.apiKey == "" {
		return "", fmt.Errorf("API key not configured for provider %s", r.provider)
	}

	reqBody := chatRequest{
		Model:       r.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: r.temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[WARN] reasoning call failed, retrying (%d/%d): %v", attempt, r.maxRetries, lastErr)
		}
		content, err := r.call(ctx, reqBody)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (r *ChatReasoner) call(ctx context.Context, reqBody chatRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(r.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := httputil.ReadResponseBody(resp.Body, 2*1024*1024)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}
