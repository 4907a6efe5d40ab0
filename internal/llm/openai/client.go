package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/video-insights/internal/llm"
)

const service = "openai"

// Config for the OpenAI client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	VisionModel string        // defaults to Model
	Temperature float32       // used when a request leaves it zero
	Timeout     time.Duration // http client timeout
}

// Client implements llm.Generator over chat/completions.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

var _ llm.Generator = (*Client)(nil)

// Generate runs a single-turn text completion.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	temp := req.Temperature
	if temp == 0 {
		temp = c.cfg.Temperature
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": temp,
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	return c.complete(ctx, "llm.generate", c.cfg.Model, body)
}

// DescribeImage sends the image inline as a data URL next to the prompt.
func (c *Client) DescribeImage(ctx context.Context, req llm.ImageRequest) (string, error) {
	dataURL, _, err := llm.ReadAsDataURL(req.ImagePath)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	body := map[string]any{
		"model": c.cfg.VisionModel,
		"messages": []map[string]any{{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": req.Prompt},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			},
		}},
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	return c.complete(ctx, "llm.vision", c.cfg.VisionModel, body)
}

func (c *Client) complete(ctx context.Context, event, model string, body map[string]any) (string, error) {
	start := time.Now()
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, err := llm.SendJSON(ctx, c.http, service, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error(event+".http_error",
			"model", model, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error(event+".decode_error",
			"error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error(event+".no_choices",
			"raw", string(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", errors.New("no choices in openai response")
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	c.logger.Debug(event+".ok",
		"model", model,
		"chars", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}
