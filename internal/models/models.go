package models

import (
	"time"
)

// BufferArticle represents a fetched article held in the buffer store until
// it has been enriched and moved into the search store
type BufferArticle struct {
	ID                int64     `json:"id"`
	ExternalID        string    `json:"external_id"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	URL               string    `json:"url"`
	PublishedAt       time.Time `json:"published_at"`
	Source            string    `json:"source"`
	Sentiment         string    `json:"sentiment"`
	SentimentScore    float64   `json:"sentiment_score"`
	Language          string    `json:"language"`
	AISummary         *string   `json:"ai_summary,omitempty"`
	AIInsights        *string   `json:"ai_insights,omitempty"`
	AISentimentRating *int      `json:"ai_sentiment_rating,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	Symbols           []string  `json:"symbols"`
	Metrics           []Metric  `json:"metrics,omitempty"`
}

// IsEnriched reports whether all AI enrichment fields are populated
func (a *BufferArticle) IsEnriched() bool {
	return a.AISummary != nil && *a.AISummary != "" &&
		a.AIInsights != nil && *a.AIInsights != "" &&
		a.AISentimentRating != nil
}

// Metric represents a numeric data point attached to a buffer article
type Metric struct {
	ID        int64   `json:"id"`
	ArticleID int64   `json:"article_id"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
}

// SearchEntry represents an enriched article in the search store
type SearchEntry struct {
	ID                int64     `json:"id"`
	ExternalID        string    `json:"external_id"`
	Title             string    `json:"title"`
	URL               string    `json:"url"`
	PublishedAt       time.Time `json:"published_at"`
	Source            string    `json:"source"`
	AISummary         string    `json:"ai_summary"`
	AIInsights        string    `json:"ai_insights"`
	AISentimentRating int       `json:"ai_sentiment_rating"`
	Sentiment         string    `json:"sentiment"`
	SentimentScore    float64   `json:"sentiment_score"`
	Language          string    `json:"language"`
	Symbols           []string  `json:"symbols"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	BufferID          *int64    `json:"buffer_id,omitempty"`
}

// Candidate represents an article arriving from an ingestion source,
// before duplicate checking and insertion into the buffer store
type Candidate struct {
	ExternalID     string    `json:"external_id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	URL            string    `json:"url"`
	PublishedAt    time.Time `json:"published_at"`
	Source         string    `json:"source"`
	Sentiment      string    `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Language       string    `json:"language"`
	Symbols        []string  `json:"symbols"`
	Metrics        []Metric  `json:"metrics,omitempty"`
}

// SearchQuery represents parsed query parameters for the search store
type SearchQuery struct {
	Search    []string   `json:"search"` // Global search terms (OR logic)
	Filter    string     `json:"filter"`
	OrderBy   string     `json:"orderby"`
	Select    []string   `json:"select"`
	Top       int        `json:"top"`
	Skip      int        `json:"skip"`
	Symbol    string     `json:"symbol"`
	Source    string     `json:"source"`
	Sentiment string     `json:"sentiment"`
	Language  string     `json:"language"`
	DateFrom  *time.Time `json:"date_from,omitempty"`
	DateTo    *time.Time `json:"date_to,omitempty"`
}

// FilterCriteria represents filter conditions
type FilterCriteria struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// SearchResult represents a page of search entries returned to a client
type SearchResult struct {
	Entries []SearchEntry `json:"entries"`
	Count   int           `json:"count"`
	Updated time.Time     `json:"updated"`
}

// BufferStats represents counts over the buffer store
type BufferStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Enriched int `json:"enriched"`
}
