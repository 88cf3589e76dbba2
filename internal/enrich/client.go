package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finfeed/internal/models"
)

// Article content beyond this is not worth prompt tokens
const maxPromptContent = 12000

const systemPrompt = `You are a financial news analyst. For the article you receive, respond with a JSON object holding three fields: "summary" (2-3 sentences), "insights" (key market implications), and "sentiment_rating" (an integer from 1 to 10 where 1 is very bearish and 10 is very bullish). Respond with JSON only.`

// Enrichment is what the model returns for one article
type Enrichment struct {
	Summary         string `json:"summary"`
	Insights        string `json:"insights"`
	SentimentRating int    `json:"sentiment_rating"`
}

// Client calls an OpenAI-compatible chat completions endpoint. Any server
// speaking that shape works; the base URL is configurable.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Enrich(ctx context.Context, article *models.BufferArticle) (*Enrichment, error) {
	content := article.Content
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": fmt.Sprintf("Title: %s\nSource: %s\n\n%s", article.Title, article.Source, content)},
		},
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrichment request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create enrichment request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("enrichment request status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment response: %v", err)
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("enrichment response has no choices")
	}

	return parseEnrichment(payload.Choices[0].Message.Content)
}

func parseEnrichment(content string) (*Enrichment, error) {
	content = strings.TrimSpace(content)

	// Models sometimes wrap the JSON in a markdown fence despite the prompt
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var enrichment Enrichment
	if err := json.Unmarshal([]byte(content), &enrichment); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment response: %v", err)
	}

	if enrichment.Summary == "" || enrichment.Insights == "" {
		return nil, fmt.Errorf("enrichment response missing summary or insights")
	}
	if enrichment.SentimentRating == 0 {
		return nil, fmt.Errorf("enrichment response missing sentiment rating")
	}

	if enrichment.SentimentRating < 1 {
		enrichment.SentimentRating = 1
	}
	if enrichment.SentimentRating > 10 {
		enrichment.SentimentRating = 10
	}

	return &enrichment, nil
}
