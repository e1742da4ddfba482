package reviewassist

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator calls Gemini through the genai SDK. Credentials come from
// the environment (GOOGLE_API_KEY or Vertex AI settings).
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator for model, or DefaultModelName.
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Model returns the model name requests are sent to.
func (g *GeminiGenerator) Model() string {
	return g.model
}

// Generate sends a single user turn and returns the response text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}
