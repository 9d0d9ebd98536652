package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"google.golang.org/genai"
)

// Provider turns a batch of texts into vectors. Implementations report an
// estimated token count for cost accounting.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, int, error)
	Dimensions() int
}

// GeminiProvider embeds through the Gemini embedding API with Matryoshka
// output truncation to the configured dimensionality.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dims   int
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, dims int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required; set GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, dims: dims}, nil
}

func (p *GeminiProvider) Dimensions() int { return p.dims }

func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float64, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		}
	}

	dims := int32(p.dims)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, 0, fmt.Errorf("embedding API returned %d vectors for %d inputs",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, 0, fmt.Errorf("no embedding values returned for input %d", i)
		}
		vec := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vec[j] = float64(v)
		}
		vectors[i] = vec
	}

	return vectors, estimateTokens(texts), nil
}

// OllamaProvider embeds through a local Ollama instance. The embeddings
// endpoint takes one prompt per call, so a batch loops.
type OllamaProvider struct {
	host   string
	model  string
	dims   int
	client *http.Client
}

func NewOllamaProvider(host, model string, dims int) *OllamaProvider {
	return &OllamaProvider{
		host:   host,
		model:  model,
		dims:   dims,
		client: &http.Client{},
	}
}

func (p *OllamaProvider) Dimensions() int { return p.dims }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float64, int, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, 0, err
		}
		vectors[i] = vec
	}
	return vectors, estimateTokens(texts), nil
}

func (p *OllamaProvider) embedOne(ctx context.Context, text string) ([]float64, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.host+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embed response: %w", err)
	}
	return out.Embedding, nil
}

// estimateTokens approximates usage from input length; neither embedding
// endpoint reports exact token counts.
func estimateTokens(texts []string) int {
	chars := 0
	for _, t := range texts {
		chars += len(t)
	}
	return chars / 4
}
