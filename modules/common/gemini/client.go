package gemini

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ReferenceImage is an inline image attached to a generation request.
type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// Client wraps the genai SDK with an ordered API-key list. On a 429 each key
// gets up to three attempts before the next key is tried.
type Client struct {
	apiKeys []string
	model   string
}

// NewClient creates a Gemini client. The model can be overridden per call.
func NewClient(apiKeys []string, model string) (*Client, error) {
	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}
	return &Client{apiKeys: apiKeys, model: model}, nil
}

// GenerateImage sends the prompt plus reference images and returns the first
// inline image from the response.
func (c *Client) GenerateImage(ctx context.Context, prompt string, refs []ReferenceImage, aspectRatio string, modelOverride string) ([]byte, error) {
	if aspectRatio == "" {
		aspectRatio = "1:1"
	}
	model := c.model
	if modelOverride != "" {
		model = modelOverride
	}

	log.Printf("🎨 Calling Gemini API (model: %s) with prompt length: %d, refs: %d, aspect-ratio: %s",
		model, len(prompt), len(refs), aspectRatio)

	var parts []*genai.Part
	for _, ref := range refs {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: ref.MIMEType,
				Data:     ref.Data,
			},
		})
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	content := &genai.Content{Parts: parts}
	genConfig := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: aspectRatio,
		},
	}

	result, err := c.generateWithRetry(ctx, model, []*genai.Content{content}, genConfig)
	if err != nil {
		return nil, err
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				log.Printf("✅ Received image from Gemini: %d bytes", len(part.InlineData.Data))
				return part.InlineData.Data, nil
			}
		}
	}

	return nil, fmt.Errorf("no image data in response")
}

// generateWithRetry walks the key list, retrying rate-limited calls.
func (c *Client) generateWithRetry(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	genConfig *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	const maxRetriesPerKey = 3
	var lastErr error

	for keyIndex, apiKey := range c.apiKeys {
		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				lastErr = err
				continue
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, genConfig)
			if err == nil {
				return result, nil
			}
			lastErr = err

			// Non-rate-limit errors are not worth another key.
			if !isRateLimitError(err) {
				return nil, err
			}

			log.Printf("⚠️  Gemini key #%d hit rate limit (attempt %d/%d)", keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				time.Sleep(2 * time.Second)
			}
		}
		log.Printf("⚠️  Gemini key #%d exhausted, trying next key...", keyIndex+1)
	}

	return nil, fmt.Errorf("all %d API keys exhausted: %w", len(c.apiKeys), lastErr)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "quota")
}
