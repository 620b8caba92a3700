package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	ErrMissingAPIKey  = errors.New("generator API key is required")
	ErrBadRequest     = errors.New("invalid generation request")
	ErrForbidden      = errors.New("generator API key invalid or quota exceeded")
	ErrModelNotFound  = errors.New("generation model or endpoint not found")
	ErrRateLimited    = errors.New("generator rate limit exceeded")
	ErrUpstream       = errors.New("generator upstream failure")
	ErrEmptyResponse  = errors.New("generator returned no text")
	ErrResponseFormat = errors.New("unexpected generator response")
)

// Generator turns a prompt into free text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig configures a GeminiClient. Zero values fall back to defaults.
type GeminiConfig struct {
	APIKey       string
	BaseURL      string // e.g. https://generativelanguage.googleapis.com/v1beta
	Model        string // e.g. gemini-2.5-flash
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// GeminiClient calls the generateContent endpoint of the Gemini REST API.
type GeminiClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// NewGeminiClient builds a client whose transport retries 429 and 5xx responses.
func NewGeminiClient(cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	rC := retryablehttp.NewClient()
	rC.Logger = nil
	rC.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rC.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rC.RetryWaitMax = cfg.RetryWaitMax
	}
	// hand back the last response so status codes map to sentinels
	rC.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rC.HTTPClient.Timeout = cfg.Timeout

	return &GeminiClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/models/" + url.PathEscape(cfg.Model) + ":generateContent",
		apiKey:   cfg.APIKey,
		client:   rC.StandardClient(),
	}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"?key="+url.QueryEscape(g.apiKey), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if corrID, ok := ctx.Value("correlation_id").(string); ok && corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, redactKey(err.Error(), g.apiKey))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrResponseFormat, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusBadRequest:
		return ErrBadRequest
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrModelNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: HTTP %d", ErrUpstream, code)
	}
}

// redactKey strips the API key from transport errors, which embed the request URL.
func redactKey(msg, key string) string {
	if key == "" {
		return msg
	}
	return strings.ReplaceAll(msg, url.QueryEscape(key), "REDACTED")
}
