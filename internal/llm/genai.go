// Package llm wraps the Gemini generation API used for classification,
// routing, comparison synthesis and open web search.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/liliang-cn/storerouter/internal/domain"
	"google.golang.org/genai"
)

// Request is a single-turn text generation request
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
	JSON        bool
}

// Client generates text with Gemini models
type Client struct {
	client *genai.Client
}

// New creates a Gemini client. It fails when no API key is configured.
func New(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required: %w", domain.ErrBackendUnavailable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{client: client}, nil
}

// Generate returns the model's text answer for req
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// SearchWeb answers prompt with Google Search grounding and appends the
// grounding links, if any.
func (c *Client) SearchWeb(ctx context.Context, model, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.3),
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return answer, nil
	}

	var links []string
	seen := make(map[string]bool)
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		title := chunk.Web.Title
		if title == "" {
			title = chunk.Web.URI
		}
		links = append(links, fmt.Sprintf("- %s: %s", title, chunk.Web.URI))
		if len(links) == 5 {
			break
		}
	}
	if len(links) > 0 {
		answer += "\n\nSources:\n" + strings.Join(links, "\n")
	}
	return answer, nil
}
