package propose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"intentminer/internal/logging"
)

// Completer is the narrow reasoning interface the proposer depends on.
// Tests substitute canned implementations.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ServiceError wraps a reasoning-call failure. Callers skip the affected
// group and continue; the run itself survives.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("reasoning service: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// =============================================================================
// GEMINI COMPLETION CLIENT
// =============================================================================

// GeminiConfig configures the Gemini completion client.
type GeminiConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	CallPause   time.Duration
}

// GeminiCompleter calls the Gemini generateContent API directly.
type GeminiCompleter struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	callPause   time.Duration
	httpClient  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiCompleter creates a Gemini completion client.
func NewGeminiCompleter(cfg GeminiConfig) (*GeminiCompleter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiCompleter{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		callPause:   cfg.CallPause,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Request/response wire types, trimmed to what the labeling call needs.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a prompt and returns the raw completion text.
// A configurable pause between calls respects provider rate limits; 429s
// retry with exponential backoff.
func (c *GeminiCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	logging.ProposeDebug("[Gemini] Complete: model=%s prompt_len=%d", c.model, len(prompt))

	// Inter-call pacing
	c.mu.Lock()
	if c.callPause > 0 {
		elapsed := time.Since(c.lastRequest)
		if elapsed < c.callPause {
			time.Sleep(c.callPause - elapsed)
		}
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      c.temperature,
			ResponseMimeType: "application/json",
		},
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", &ServiceError{Err: ctx.Err()}
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", &ServiceError{Err: fmt.Errorf("failed to marshal request: %w", err)}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", &ServiceError{Err: fmt.Errorf("failed to create request: %w", err)}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", &ServiceError{Err: fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))}
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", &ServiceError{Err: fmt.Errorf("failed to parse response: %w", err)}
		}
		if parsed.Error != nil {
			return "", &ServiceError{Err: fmt.Errorf("API error: %s", parsed.Error.Message)}
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", &ServiceError{Err: fmt.Errorf("no completion returned")}
		}

		var result strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		response := strings.TrimSpace(result.String())

		logging.Propose("[Gemini] Complete: completed in %v response_len=%d",
			time.Since(startTime), len(response))
		return response, nil
	}

	logging.Get(logging.CategoryPropose).Error("[Gemini] Complete: max retries exceeded after %v: %v",
		time.Since(startTime), lastErr)
	return "", &ServiceError{Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}
