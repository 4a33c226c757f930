// Package summary asks an OpenAI-compatible chat completion endpoint for a
// structured summary of one message.
package summary

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/michellemayes/logseq-assistant/internal/notes"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"

	temperature = 0.2
	maxTokens   = 400
)

const systemPrompt = "You are an assistant that summarizes emails for busy knowledge workers. " +
	"Respond with a compact JSON object containing five fields: " +
	"'summary' (2-3 sentence overview), 'key_points' (concise bullet strings), 'todos' " +
	"(actionable follow-ups without any TODO prefix), 'context_notes' (assumptions or " +
	"background, may be empty), and 'topics' (short names of projects or products mentioned, may be empty)."

const userPromptFormat = "Summarize the following email for Logseq. Highlight the sender's intent, critical facts, " +
	"explicit or implied requests, and recommended follow-ups. Return JSON only.\n\n" +
	"Subject: %s\n\nBody: %s"

// Cache stores summaries keyed by a digest of the request.
type Cache interface {
	Get(ctx context.Context, key string) (notes.Summary, bool, error)
	Set(ctx context.Context, key string, summary notes.Summary) error
}

type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	RatePerMinute int
	HTTPClient    *http.Client
	Cache         Cache
	Logger        logrus.FieldLogger
	// OnCacheHit is called for every summary served from Cache.
	OnCacheHit func()
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      Cache
	logger     logrus.FieldLogger
	onCacheHit func()
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: opts.HTTPClient,
		cache:      opts.Cache,
		logger:     opts.Logger,
		onCacheHit: opts.OnCacheHit,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if opts.RatePerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), 1)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize returns a normalized summary. A reply that is not valid JSON
// becomes a fallback summary rather than an error.
func (c *Client) Summarize(ctx context.Context, subject, body string) (notes.Summary, error) {
	if strings.TrimSpace(subject) == "" {
		subject = notes.NoSubject
	}
	key := c.cacheKey(subject, body)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.WithError(err).Warn("summary cache lookup failed")
		} else if ok {
			if c.onCacheHit != nil {
				c.onCacheHit()
			}
			return cached, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return notes.Summary{}, fmt.Errorf("wait for summary rate limit: %w", err)
		}
	}

	content, err := c.complete(ctx, subject, body)
	if err != nil {
		return notes.Summary{}, err
	}

	result, err := Decode(content)
	if err != nil {
		c.logger.WithError(err).Warn("summary reply was not valid JSON; using raw text")
		return notes.Fallback(content), nil
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, result); err != nil {
			c.logger.WithError(err).Warn("failed to cache summary")
		}
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, subject, body string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptFormat, subject, body)},
		},
		Temperature:    temperature,
		MaxTokens:      maxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	c.logger.Debugf("requesting summary from model %s", c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response had no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) cacheKey(subject, body string) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
