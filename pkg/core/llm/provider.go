// Package llm holds the model-backed label matcher used as the last
// fallback when a required variable has no direct or computed candidate.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrNoAPIKey is returned when the provider has no credentials.
var ErrNoAPIKey = eris.New("llm: api key not set")

// Provider is the interface for text-generation backends.
type Provider interface {
	GenerateResponse(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// GeminiProvider implements Provider with Google's GenAI SDK.
type GeminiProvider struct {
	APIKey string
	Model  string
	// Temperature defaults to 0 so repeated runs pick the same label.
	Temperature float32
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates a provider for model, or DefaultModel when
// model is empty.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = DefaultModel
	}
	return &GeminiProvider{APIKey: apiKey, Model: model}
}

// GenerateResponse sends one generateContent request in JSON mode.
func (p *GeminiProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if p.APIKey == "" {
		return "", ErrNoAPIKey
	}
	model := p.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: create genai client")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.Temperature),
		ResponseMIMEType: "application/json",
	}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", eris.Wrapf(err, "llm: gemini generation (%s)", model)
	}
	return result.Text(), nil
}
