package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

func newTestWorker(t *testing.T, serverURL string) (*Worker, storage.Storage) {
	t.Helper()

	cfg := &config.Config{
		MaxContentLength: 50000,
		DuplicateWindow:  48 * time.Hour,
		Enrich: config.EnrichConfig{
			Enabled:        true,
			APIKey:         "test-key",
			BaseURL:        serverURL,
			Model:          "gpt-4o-mini",
			Interval:       time.Minute,
			BatchSize:      10,
			RequestTimeout: 5 * time.Second,
			RatePerSecond:  1000,
			RateBurst:      10,
		},
	}

	store, err := storage.NewSQLiteStorage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewWorker(store, cfg), store
}

func saveTestArticle(t *testing.T, store storage.Storage, externalID, title string) {
	t.Helper()

	_, err := store.SaveArticle(&models.Candidate{
		ExternalID:  externalID,
		Title:       title,
		Content:     "Some article content about markets.",
		URL:         "https://example.com/" + externalID,
		PublishedAt: time.Now().UTC(),
		Source:      "cnbc",
	})
	if err != nil {
		t.Fatalf("Failed to save article: %v", err)
	}
}

func TestWorker_ProcessPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(enrichmentResponse(`{"summary":"A summary.","insights":"Some insights.","sentiment_rating":7}`)))
	}))
	defer server.Close()

	worker, store := newTestWorker(t, server.URL)
	saveTestArticle(t, store, "cnbc-1", "Fed Holds Rates Steady")
	saveTestArticle(t, store, "cnbc-2", "Retail Earnings Beat")

	worker.ProcessPending(context.Background())

	for _, externalID := range []string{"cnbc-1", "cnbc-2"} {
		article, err := store.GetBufferArticle(externalID)
		if err != nil {
			t.Fatalf("Failed to get article %s: %v", externalID, err)
		}
		if !article.IsEnriched() {
			t.Errorf("Expected %s to be enriched", externalID)
		}
		if article.AISummary == nil || *article.AISummary != "A summary." {
			t.Errorf("Expected summary stored for %s", externalID)
		}
	}

	stats, err := store.GetBufferStats()
	if err != nil {
		t.Fatalf("Failed to get buffer stats: %v", err)
	}
	if stats.Enriched != 2 || stats.Pending != 0 {
		t.Errorf("Expected 2 enriched, 0 pending, got %d and %d", stats.Enriched, stats.Pending)
	}

	status := worker.Status()
	if status.Enriched != 2 {
		t.Errorf("Expected status to count 2 enriched, got %d", status.Enriched)
	}
	if status.LastRun.IsZero() {
		t.Error("Expected last run to be recorded")
	}
}

func TestWorker_ProcessPending_PartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)

		// Fail only the request carrying the poisoned title
		if messages, ok := body["messages"].([]interface{}); ok {
			for _, m := range messages {
				if msg, ok := m.(map[string]interface{}); ok {
					if content, ok := msg["content"].(string); ok && strings.Contains(content, "Poison Article") {
						w.WriteHeader(http.StatusInternalServerError)
						return
					}
				}
			}
		}

		w.Write([]byte(enrichmentResponse(`{"summary":"A summary.","insights":"Some insights.","sentiment_rating":7}`)))
	}))
	defer server.Close()

	worker, store := newTestWorker(t, server.URL)
	saveTestArticle(t, store, "cnbc-1", "Poison Article")
	saveTestArticle(t, store, "cnbc-2", "Healthy Article")

	worker.ProcessPending(context.Background())

	healthy, err := store.GetBufferArticle("cnbc-2")
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if !healthy.IsEnriched() {
		t.Error("Expected healthy article enriched despite sibling failure")
	}

	poisoned, err := store.GetBufferArticle("cnbc-1")
	if err != nil {
		t.Fatalf("Failed to get article: %v", err)
	}
	if poisoned.IsEnriched() {
		t.Error("Expected failed article to stay pending")
	}

	// The failed article comes back in the next batch
	pending, err := store.PendingEnrichment(10)
	if err != nil {
		t.Fatalf("Failed to list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ExternalID != "cnbc-1" {
		t.Errorf("Expected cnbc-1 still pending, got %v", pending)
	}

	status := worker.Status()
	if status.Enriched != 1 || status.Failed != 1 {
		t.Errorf("Expected 1 enriched and 1 failed, got %d and %d", status.Enriched, status.Failed)
	}
}

func TestWorker_Disabled(t *testing.T) {
	cfg := &config.Config{
		MaxContentLength: 50000,
		DuplicateWindow:  48 * time.Hour,
		Enrich:           config.EnrichConfig{Enabled: true, Interval: time.Minute},
	}

	store, err := storage.NewSQLiteStorage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	// Enabled flag without an API key still means disabled
	worker := NewWorker(store, cfg)
	worker.Start()
	defer worker.Stop()

	status := worker.Status()
	if status.Enabled {
		t.Error("Expected worker disabled without API key")
	}
	if status.Running {
		t.Error("Expected no loop to start for disabled worker")
	}
}

func TestWorker_StartStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(enrichmentResponse(`{"summary":"A summary.","insights":"Some insights.","sentiment_rating":7}`)))
	}))
	defer server.Close()

	worker, _ := newTestWorker(t, server.URL)

	worker.Start()
	if !worker.Status().Running {
		t.Error("Expected worker running after Start")
	}

	// Second start is a no-op
	worker.Start()

	worker.Stop()
	if worker.Status().Running {
		t.Error("Expected worker stopped after Stop")
	}
}
