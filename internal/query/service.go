package query

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"finfeed/internal/cache"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

// Service is the read path over the search store. It resolves queries
// against the cache first and falls back to storage, pushing as much of
// the filter expression into SQL as possible.
type Service struct {
	cacheManager *cache.Manager
	storage      storage.Storage
	filterParser *FilterParser
	cacheTTL     time.Duration
}

func New(cacheManager *cache.Manager, storage storage.Storage, cacheTTL time.Duration) *Service {
	return &Service{
		cacheManager: cacheManager,
		storage:      storage,
		filterParser: NewFilterParser(),
		cacheTTL:     cacheTTL,
	}
}

func (s *Service) Search(q *models.SearchQuery) (*models.SearchResult, error) {
	// Key is derived from the full query before any rewriting
	key := cacheKey(q)
	if cached, found := s.cacheManager.Get(key); found {
		if result, ok := cached.(*models.SearchResult); ok {
			return result, nil
		}
	}

	var residual *FilterExpression
	if q.Filter != "" {
		expr, err := s.filterParser.Parse(q.Filter)
		if err != nil {
			// Unparseable filters degrade to a plain text match in storage
			log.Printf("Warning: treating filter as free text: %v", err)
		} else {
			residual = s.filterParser.PushDown(expr, q)
			q.Filter = ""
		}
	}

	var result *models.SearchResult
	if residual == nil {
		entries, total, err := s.storage.QuerySearchEntries(q)
		if err != nil {
			return nil, fmt.Errorf("failed to query search entries: %v", err)
		}
		result = &models.SearchResult{
			Entries: applySelectFields(entries, q.Select),
			Count:   total,
			Updated: time.Now(),
		}
	} else {
		var err error
		result, err = s.searchWithResidual(q, residual)
		if err != nil {
			return nil, err
		}
	}

	s.cacheManager.Set(key, result, s.cacheTTL)
	return result, nil
}

// searchWithResidual loads the full candidate set and evaluates the part of
// the filter SQL could not express against each entry, then paginates in
// memory. Count reflects matches before pagination.
func (s *Service) searchWithResidual(q *models.SearchQuery, residual *FilterExpression) (*models.SearchResult, error) {
	full := *q
	full.Top = 0
	full.Skip = 0

	entries, _, err := s.storage.QuerySearchEntries(&full)
	if err != nil {
		return nil, fmt.Errorf("failed to query search entries: %v", err)
	}

	var filtered []models.SearchEntry
	for _, entry := range entries {
		matches, err := s.filterParser.Evaluate(residual, entry)
		if err != nil {
			return nil, fmt.Errorf("filter evaluation error: %v", err)
		}
		if matches {
			filtered = append(filtered, entry)
		}
	}

	total := len(filtered)

	if q.Skip > 0 {
		if q.Skip >= len(filtered) {
			filtered = []models.SearchEntry{}
		} else {
			filtered = filtered[q.Skip:]
		}
	}
	if q.Top > 0 && q.Top < len(filtered) {
		filtered = filtered[:q.Top]
	}

	return &models.SearchResult{
		Entries: applySelectFields(filtered, q.Select),
		Count:   total,
		Updated: time.Now(),
	}, nil
}

// Lookup resolves an article by external_id. The search store is the system
// of record; buffered articles that have not been promoted yet are returned
// with pending set so callers can flag them.
func (s *Service) Lookup(externalID string) (*models.SearchEntry, bool, error) {
	entry, err := s.storage.GetSearchEntry(externalID)
	if err == nil {
		return entry, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, err
	}

	article, err := s.storage.GetBufferArticle(externalID)
	if err != nil {
		return nil, false, err
	}

	return bufferView(article), true, nil
}

// ListSymbols returns every symbol present in the search store
func (s *Service) ListSymbols() ([]string, error) {
	if cached, found := s.cacheManager.Get("symbols"); found {
		if symbols, ok := cached.([]string); ok {
			return symbols, nil
		}
	}

	symbols, err := s.storage.ListSymbols()
	if err != nil {
		return nil, err
	}

	s.cacheManager.Set("symbols", symbols, s.cacheTTL)
	return symbols, nil
}

// Invalidate drops all cached results. The syncer calls this after
// promoting new entries so readers do not see stale pages for a full TTL.
func (s *Service) Invalidate() {
	s.cacheManager.Flush()
}

// CachedItems reports how many results are currently cached
func (s *Service) CachedItems() int {
	return s.cacheManager.ItemCount()
}

// bufferView renders a buffer article in the search entry shape. AI fields
// stay empty until enrichment fills them.
func bufferView(a *models.BufferArticle) *models.SearchEntry {
	entry := &models.SearchEntry{
		ExternalID:     a.ExternalID,
		Title:          a.Title,
		URL:            a.URL,
		PublishedAt:    a.PublishedAt,
		Source:         a.Source,
		Sentiment:      a.Sentiment,
		SentimentScore: a.SentimentScore,
		Language:       a.Language,
		Symbols:        a.Symbols,
		CreatedAt:      a.CreatedAt,
		BufferID:       &a.ID,
	}

	if a.AISummary != nil {
		entry.AISummary = *a.AISummary
	}
	if a.AIInsights != nil {
		entry.AIInsights = *a.AIInsights
	}
	if a.AISentimentRating != nil {
		entry.AISentimentRating = *a.AISentimentRating
	}

	return entry
}

func cacheKey(q *models.SearchQuery) string {
	from := ""
	if q.DateFrom != nil {
		from = q.DateFrom.Format(time.RFC3339)
	}
	to := ""
	if q.DateTo != nil {
		to = q.DateTo.Format(time.RFC3339)
	}

	return fmt.Sprintf("search:%s;%s;%s;%s;%d;%d;%s;%s;%s;%s;%s;%s",
		strings.Join(q.Search, "|"), q.Filter, q.OrderBy, strings.Join(q.Select, ","),
		q.Top, q.Skip, q.Symbol, q.Source, q.Sentiment, q.Language, from, to)
}

func applySelectFields(entries []models.SearchEntry, selectedFields []string) []models.SearchEntry {
	// Create a map of valid fields for quick lookup
	validFields := make(map[string]bool)
	for _, field := range selectedFields {
		validFields[strings.ToLower(strings.TrimSpace(field))] = true
	}

	// If no valid fields selected, return all fields (default behavior)
	if len(validFields) == 0 {
		return entries
	}

	// Create new entries with only selected fields
	result := make([]models.SearchEntry, len(entries))
	for i, entry := range entries {
		newEntry := models.SearchEntry{}

		// Only copy selected fields
		if validFields["external_id"] {
			newEntry.ExternalID = entry.ExternalID
		}
		if validFields["title"] {
			newEntry.Title = entry.Title
		}
		if validFields["url"] {
			newEntry.URL = entry.URL
		}
		if validFields["published_at"] {
			newEntry.PublishedAt = entry.PublishedAt
		}
		if validFields["source"] {
			newEntry.Source = entry.Source
		}
		if validFields["ai_summary"] {
			newEntry.AISummary = entry.AISummary
		}
		if validFields["ai_insights"] {
			newEntry.AIInsights = entry.AIInsights
		}
		if validFields["ai_sentiment_rating"] {
			newEntry.AISentimentRating = entry.AISentimentRating
		}
		if validFields["sentiment"] {
			newEntry.Sentiment = entry.Sentiment
			newEntry.SentimentScore = entry.SentimentScore
		}
		if validFields["language"] {
			newEntry.Language = entry.Language
		}
		if validFields["symbols"] {
			newEntry.Symbols = entry.Symbols
		}

		result[i] = newEntry
	}

	return result
}
