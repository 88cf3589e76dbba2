package models

import (
	"testing"
	"time"
)

func TestBufferArticle_Fields(t *testing.T) {
	summary := "Test summary"
	insights := "Test insights"
	rating := 7
	article := BufferArticle{
		ID:                1,
		ExternalID:        "ext-1",
		Title:             "Test Title",
		Content:           "Test content",
		URL:               "https://example.com/test",
		PublishedAt:       time.Now(),
		Source:            "Test Source",
		Sentiment:         "positive",
		SentimentScore:    0.82,
		Language:          "en",
		AISummary:         &summary,
		AIInsights:        &insights,
		AISentimentRating: &rating,
		CreatedAt:         time.Now(),
		Symbols:           []string{"AAPL", "MSFT"},
		Metrics:           []Metric{{Name: "mentions", Value: 3}},
	}

	// Test that all fields are set correctly
	if article.ExternalID != "ext-1" {
		t.Errorf("Expected ExternalID 'ext-1', got '%s'", article.ExternalID)
	}

	if article.Title != "Test Title" {
		t.Errorf("Expected Title 'Test Title', got '%s'", article.Title)
	}

	if article.URL != "https://example.com/test" {
		t.Errorf("Expected URL 'https://example.com/test', got '%s'", article.URL)
	}

	if article.Sentiment != "positive" {
		t.Errorf("Expected Sentiment 'positive', got '%s'", article.Sentiment)
	}

	if article.SentimentScore != 0.82 {
		t.Errorf("Expected SentimentScore 0.82, got %f", article.SentimentScore)
	}

	if len(article.Symbols) != 2 {
		t.Errorf("Expected 2 symbols, got %d", len(article.Symbols))
	}

	if len(article.Metrics) != 1 {
		t.Errorf("Expected 1 metric, got %d", len(article.Metrics))
	}
}

func TestBufferArticle_IsEnriched(t *testing.T) {
	summary := "summary"
	insights := "insights"
	empty := ""
	rating := 5

	tests := []struct {
		name     string
		article  BufferArticle
		expected bool
	}{
		{
			name:     "all fields nil",
			article:  BufferArticle{},
			expected: false,
		},
		{
			name: "summary only",
			article: BufferArticle{
				AISummary: &summary,
			},
			expected: false,
		},
		{
			name: "summary and insights",
			article: BufferArticle{
				AISummary:  &summary,
				AIInsights: &insights,
			},
			expected: false,
		},
		{
			name: "empty summary with rating",
			article: BufferArticle{
				AISummary:         &empty,
				AIInsights:        &insights,
				AISentimentRating: &rating,
			},
			expected: false,
		},
		{
			name: "fully enriched",
			article: BufferArticle{
				AISummary:         &summary,
				AIInsights:        &insights,
				AISentimentRating: &rating,
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.article.IsEnriched(); got != tt.expected {
				t.Errorf("IsEnriched() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestSearchEntry_Fields(t *testing.T) {
	bufferID := int64(42)
	entry := SearchEntry{
		ID:                1,
		ExternalID:        "ext-1",
		Title:             "Test Title",
		URL:               "https://example.com/test",
		PublishedAt:       time.Now(),
		Source:            "Test Source",
		AISummary:         "summary",
		AIInsights:        "insights",
		AISentimentRating: 8,
		Sentiment:         "positive",
		SentimentScore:    0.9,
		Language:          "en",
		Symbols:           []string{"TSLA"},
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
		BufferID:          &bufferID,
	}

	// Test that all fields are set correctly
	if entry.ExternalID != "ext-1" {
		t.Errorf("Expected ExternalID 'ext-1', got '%s'", entry.ExternalID)
	}

	if entry.AISummary != "summary" {
		t.Errorf("Expected AISummary 'summary', got '%s'", entry.AISummary)
	}

	if entry.AISentimentRating != 8 {
		t.Errorf("Expected AISentimentRating 8, got %d", entry.AISentimentRating)
	}

	if entry.BufferID == nil || *entry.BufferID != 42 {
		t.Errorf("Expected BufferID 42, got %v", entry.BufferID)
	}

	if len(entry.Symbols) != 1 {
		t.Errorf("Expected 1 symbol, got %d", len(entry.Symbols))
	}
}

func TestSearchQuery_Fields(t *testing.T) {
	now := time.Now()
	query := SearchQuery{
		Search:    []string{"earnings", "guidance"},
		Filter:    "source eq 'reuters'",
		OrderBy:   "published_at desc",
		Select:    []string{"title", "url"},
		Top:       10,
		Skip:      5,
		Symbol:    "AAPL",
		Source:    "reuters",
		Sentiment: "positive",
		Language:  "en",
		DateFrom:  &now,
		DateTo:    &now,
	}

	// Test that all fields are set correctly
	if len(query.Search) != 2 {
		t.Errorf("Expected 2 search terms, got %d", len(query.Search))
	}

	if query.Filter != "source eq 'reuters'" {
		t.Errorf("Expected Filter 'source eq 'reuters'', got '%s'", query.Filter)
	}

	if query.OrderBy != "published_at desc" {
		t.Errorf("Expected OrderBy 'published_at desc', got '%s'", query.OrderBy)
	}

	if query.Top != 10 {
		t.Errorf("Expected Top 10, got %d", query.Top)
	}

	if query.Skip != 5 {
		t.Errorf("Expected Skip 5, got %d", query.Skip)
	}

	if query.Symbol != "AAPL" {
		t.Errorf("Expected Symbol 'AAPL', got '%s'", query.Symbol)
	}
}

func TestFilterCriteria_Fields(t *testing.T) {
	criteria := FilterCriteria{
		Field:    "source",
		Operator: "eq",
		Value:    "reuters",
	}

	// Test that all fields are set correctly
	if criteria.Field != "source" {
		t.Errorf("Expected Field 'source', got '%s'", criteria.Field)
	}

	if criteria.Operator != "eq" {
		t.Errorf("Expected Operator 'eq', got '%s'", criteria.Operator)
	}

	if criteria.Value != "reuters" {
		t.Errorf("Expected Value 'reuters', got '%s'", criteria.Value)
	}
}
