package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

func newTestIngester(t *testing.T) (*Ingester, storage.Storage) {
	t.Helper()

	cfg := &config.Config{MaxContentLength: 50000, DuplicateWindow: 48 * time.Hour}
	store, err := storage.NewSQLiteStorage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(store, cfg), store
}

func TestIngester_Ingest(t *testing.T) {
	ingester, store := newTestIngester(t)

	now := time.Now().UTC()
	candidates := []models.Candidate{
		{
			ExternalID:  "cnbc-1",
			Title:       "Fed Holds Rates Steady",
			Content:     "<p>The central bank left rates <strong>unchanged</strong>.</p>",
			URL:         "https://example.com/fed-holds",
			PublishedAt: now,
			Source:      "cnbc",
			Symbols:     []string{"spy"},
		},
		{
			ExternalID:  "cnbc-2",
			Title:       "Retail Earnings Beat",
			Content:     "Retailers posted strong results.",
			URL:         "https://example.com/retail",
			PublishedAt: now,
			Source:      "cnbc",
		},
	}

	stats := ingester.Ingest(context.Background(), candidates)

	if stats.Received != 2 {
		t.Errorf("Expected 2 received, got %d", stats.Received)
	}
	if stats.Saved != 2 {
		t.Errorf("Expected 2 saved, got %d", stats.Saved)
	}
	if stats.Duplicates != 0 || stats.Failed != 0 {
		t.Errorf("Expected no duplicates or failures, got %d and %d", stats.Duplicates, stats.Failed)
	}
	if len(stats.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(stats.Results))
	}

	article, err := store.GetBufferArticle("cnbc-1")
	if err != nil {
		t.Fatalf("Failed to get saved article: %v", err)
	}
	if strings.Contains(article.Content, "<p>") {
		t.Errorf("Expected HTML converted to markdown, got '%s'", article.Content)
	}
	if !strings.Contains(article.Content, "**unchanged**") {
		t.Errorf("Expected bold markdown in content, got '%s'", article.Content)
	}
	if len(article.Symbols) != 1 || article.Symbols[0] != "SPY" {
		t.Errorf("Expected normalized symbols [SPY], got %v", article.Symbols)
	}
}

func TestIngester_Ingest_DuplicateSkipped(t *testing.T) {
	ingester, _ := newTestIngester(t)

	now := time.Now().UTC()
	original := models.Candidate{
		ExternalID:  "cnbc-1",
		Title:       "Fed Holds Rates Steady",
		Content:     "The central bank left rates unchanged.",
		URL:         "https://example.com/fed-holds",
		PublishedAt: now,
		Source:      "cnbc",
	}

	stats := ingester.Ingest(context.Background(), []models.Candidate{original})
	if stats.Saved != 1 {
		t.Fatalf("Expected 1 saved, got %d", stats.Saved)
	}

	tests := []struct {
		name      string
		candidate models.Candidate
		reason    string
	}{
		{
			name:      "same external id",
			candidate: models.Candidate{ExternalID: "cnbc-1", Title: "Different Title", URL: "https://example.com/other", PublishedAt: now, Source: "cnbc"},
			reason:    "buffer:external_id",
		},
		{
			name:      "same url",
			candidate: models.Candidate{ExternalID: "cnbc-9", Title: "Another Title", URL: "https://example.com/fed-holds", PublishedAt: now, Source: "cnbc"},
			reason:    "buffer:url",
		},
		{
			name:      "same title inside window",
			candidate: models.Candidate{ExternalID: "yahoo-1", Title: "Fed Holds Rates Steady", URL: "https://example.com/yahoo-fed", PublishedAt: now.Add(24 * time.Hour), Source: "yahoo-finance"},
			reason:    "buffer:title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := ingester.Ingest(context.Background(), []models.Candidate{tt.candidate})

			if stats.Duplicates != 1 {
				t.Fatalf("Expected 1 duplicate, got %d (failed %d, saved %d)", stats.Duplicates, stats.Failed, stats.Saved)
			}
			if stats.Results[0].Reason != tt.reason {
				t.Errorf("Expected reason '%s', got '%s'", tt.reason, stats.Results[0].Reason)
			}
		})
	}
}

func TestIngester_Ingest_SearchStoreDuplicate(t *testing.T) {
	ingester, store := newTestIngester(t)

	now := time.Now().UTC()
	_, err := store.UpsertSearchEntries([]models.SearchEntry{
		{
			ExternalID:        "cnbc-1",
			Title:             "Fed Holds Rates Steady",
			URL:               "https://example.com/fed-holds",
			PublishedAt:       now,
			Source:            "cnbc",
			AISummary:         "Rates unchanged",
			AIInsights:        "Cuts expected later",
			AISentimentRating: 6,
			Sentiment:         "neutral",
			Language:          "en",
		},
	})
	if err != nil {
		t.Fatalf("Failed to seed search entry: %v", err)
	}

	stats := ingester.Ingest(context.Background(), []models.Candidate{
		{ExternalID: "cnbc-1", Title: "Fed Holds Rates Steady", URL: "https://example.com/fed-holds", PublishedAt: now, Source: "cnbc"},
	})

	if stats.Duplicates != 1 {
		t.Fatalf("Expected 1 duplicate against search store, got %d", stats.Duplicates)
	}
	if stats.Results[0].Reason != "search:external_id" {
		t.Errorf("Expected reason 'search:external_id', got '%s'", stats.Results[0].Reason)
	}
}

func TestIngester_Ingest_MissingFields(t *testing.T) {
	ingester, _ := newTestIngester(t)

	stats := ingester.Ingest(context.Background(), []models.Candidate{
		{Title: "No External ID", URL: "https://example.com/no-id"},
		{ExternalID: "cnbc-1", URL: "https://example.com/no-title"},
	})

	if stats.Failed != 2 {
		t.Errorf("Expected 2 failures, got %d", stats.Failed)
	}
	for _, result := range stats.Results {
		if result.Status != "failed" {
			t.Errorf("Expected status 'failed', got '%s'", result.Status)
		}
	}
}

// stubStorage lets a test force the save-time constraint error that only
// happens when a concurrent insert wins the race after the duplicate check
type stubStorage struct {
	storage.Storage
}

func (s *stubStorage) FindDuplicate(externalID, url, title string, publishedAt time.Time, window time.Duration) (string, error) {
	return "", nil
}

func (s *stubStorage) SaveArticle(candidate *models.Candidate) (int64, error) {
	return 0, storage.ErrDuplicate
}

func TestIngester_Ingest_UniqueConstraintRace(t *testing.T) {
	cfg := &config.Config{MaxContentLength: 50000, DuplicateWindow: 48 * time.Hour}
	ingester := New(&stubStorage{}, cfg)

	stats := ingester.Ingest(context.Background(), []models.Candidate{
		{ExternalID: "cnbc-1", Title: "Fed Holds Rates Steady", URL: "https://example.com/fed-holds", PublishedAt: time.Now().UTC()},
	})

	if stats.Duplicates != 1 {
		t.Fatalf("Expected constraint error counted as duplicate, got %d duplicates and %d failed", stats.Duplicates, stats.Failed)
	}
	if stats.Results[0].Reason != "unique constraint" {
		t.Errorf("Expected reason 'unique constraint', got '%s'", stats.Results[0].Reason)
	}
}

func TestIngester_Ingest_ContextCancelled(t *testing.T) {
	ingester, _ := newTestIngester(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats := ingester.Ingest(ctx, []models.Candidate{
		{ExternalID: "cnbc-1", Title: "Fed Holds Rates Steady", URL: "https://example.com/fed-holds", PublishedAt: time.Now().UTC()},
	})

	if stats.Saved != 0 || len(stats.Results) != 0 {
		t.Errorf("Expected no work after cancellation, got %d saved", stats.Saved)
	}
}

func TestIngester_Normalize(t *testing.T) {
	ingester, _ := newTestIngester(t)

	candidate := models.Candidate{
		ExternalID: "cnbc-1",
		Title:      "  Padded Title  ",
		Content:    "<p>Some <em>content</em> here.</p>",
		Symbols:    []string{"aapl", "AAPL", " msft "},
	}

	ingester.Normalize(&candidate)

	if candidate.Title != "Padded Title" {
		t.Errorf("Expected trimmed title, got '%s'", candidate.Title)
	}
	if candidate.Content != "Some _content_ here." {
		t.Errorf("Expected markdown content, got '%s'", candidate.Content)
	}
	if len(candidate.Symbols) != 2 {
		t.Errorf("Expected 2 deduplicated symbols, got %v", candidate.Symbols)
	}
	if candidate.PublishedAt.IsZero() {
		t.Error("Expected published time to be defaulted")
	}
}

func TestIngester_Normalize_ClampsContent(t *testing.T) {
	cfg := &config.Config{MaxContentLength: 20, DuplicateWindow: 48 * time.Hour}
	ingester := New(&stubStorage{}, cfg)

	candidate := models.Candidate{
		ExternalID: "cnbc-1",
		Title:      "Long Article",
		Content:    strings.Repeat("word ", 100),
	}

	ingester.Normalize(&candidate)

	if len(candidate.Content) > 20 {
		t.Errorf("Expected content clamped to 20 bytes, got %d", len(candidate.Content))
	}
}
