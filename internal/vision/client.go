package vision

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Client is a thin adapter around Gemini Vision. It performs a single
// generate-content call per Extract: no retry, no caching, no batching.
// Availability is decided once at construction from whether an API key was
// configured; the provider is never probed.
type Client struct {
	client *genai.Client
	model  string
}

// New creates the extraction client. An empty API key yields a client that
// reports itself unavailable rather than an error, so the rest of the
// service can run without extraction.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return &Client{model: model}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: create genai client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

// Available reports whether an API key was configured at startup.
func (c *Client) Available() bool {
	return c.client != nil
}

// Extract sends the prompt and image to the model and returns the raw text
// response. Sampling leans deterministic and output length is bounded; all
// harm categories are unblocked because the inputs are printed receipts.
func (c *Client) Extract(ctx context.Context, prompt string, imageBytes []byte, mimeType string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("vision: client not configured")
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     imageBytes,
					},
				},
			},
		},
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.1)),
		TopP:            genai.Ptr(float32(0.8)),
		TopK:            genai.Ptr(float32(40)),
		MaxOutputTokens: 2048,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("vision: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return "", fmt.Errorf("vision: empty response from model")
	}

	return rawText, nil
}
