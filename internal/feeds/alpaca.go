package feeds

import (
	"context"
	"fmt"
	"log"
	"time"

	"finfeed/internal/models"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaSource pulls symbol news from the Alpaca market data API
type AlpacaSource struct {
	client  *marketdata.Client
	symbols []string
}

func NewAlpacaSource(apiKey, apiSecret string, symbols []string) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return &AlpacaSource{client: client, symbols: symbols}
}

func (s *AlpacaSource) Name() string {
	return "alpaca"
}

func (s *AlpacaSource) Fetch(ctx context.Context, since time.Time) ([]models.Candidate, error) {
	// The market data client does not take a context, so honor
	// cancellation before the call
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	articles, err := s.client.GetNews(marketdata.GetNewsRequest{
		Symbols:        s.symbols,
		Start:          since,
		IncludeContent: true,
		TotalLimit:     100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alpaca news: %v", err)
	}

	candidates := make([]models.Candidate, 0, len(articles))
	for _, article := range articles {
		candidates = append(candidates, newsToCandidate(article))
	}

	log.Printf("Fetched %d news articles from alpaca", len(candidates))
	return candidates, nil
}

func newsToCandidate(n marketdata.News) models.Candidate {
	content := n.Content
	if content == "" {
		content = n.Summary
	}

	return models.Candidate{
		ExternalID:  fmt.Sprintf("alpaca-%d", n.ID),
		Title:       n.Headline,
		Content:     content,
		URL:         n.URL,
		PublishedAt: n.CreatedAt.UTC(),
		Source:      "alpaca",
		Symbols:     n.Symbols,
	}
}
