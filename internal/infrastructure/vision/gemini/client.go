package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/dreschagin/dashboard-extractor/internal/application/port"
	"github.com/dreschagin/dashboard-extractor/internal/domain/entity"
	"github.com/dreschagin/dashboard-extractor/internal/infrastructure/vision"
	"github.com/dreschagin/dashboard-extractor/pkg/logger"
)

const defaultModel = "gemini-2.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client - анализатор снимков на Gemini API.
type Client struct {
	client *genai.Client
	cfg    Config
	logger *logger.Logger
}

var _ port.VisionAnalyzer = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{client: client, cfg: cfg, logger: log}, nil
}

func (c *Client) Analyze(ctx context.Context, image []byte) (*entity.MetricRecord, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(c.cfg.Prompt),
			genai.NewPartFromBytes(image, "image/png"),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr(float32(c.cfg.Temperature)),
	}
	if c.cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: empty gemini response", port.ErrMalformedAnalysis)
	}

	c.logger.Debug("Gemini response received", "model", c.cfg.Model, "chars", len(text))
	return vision.ParseRecord(text)
}
