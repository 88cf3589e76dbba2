package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

func testSyncConfig() *config.Config {
	return &config.Config{
		MaxContentLength: 50000,
		DuplicateWindow:  48 * time.Hour,
		Sync: config.SyncConfig{
			Interval:      time.Hour,
			BatchSize:     2,
			MaxRetries:    3,
			RetryBackoff:  time.Millisecond,
			RetryMaxDelay: 10 * time.Millisecond,
		},
	}
}

func newTestStorage(t *testing.T, cfg *config.Config) storage.Storage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("Failed to create SQLite storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// saveEnriched buffers n articles and marks them enriched
func saveEnriched(t *testing.T, store storage.Storage, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		externalID := fmt.Sprintf("sync-%03d", i)
		candidate := &models.Candidate{
			ExternalID:  externalID,
			Title:       fmt.Sprintf("Market Update %d", i),
			Content:     "Index futures moved higher ahead of the open.",
			URL:         fmt.Sprintf("https://example.com/news/%d", i),
			PublishedAt: time.Now().UTC(),
			Source:      "test-source",
			Sentiment:   "neutral",
			Language:    "en",
			Symbols:     []string{"SPY"},
		}
		if _, err := store.SaveArticle(candidate); err != nil {
			t.Fatalf("Failed to save article %s: %v", externalID, err)
		}
		if err := store.UpdateEnrichment(externalID, "Futures rose.", "Risk appetite is back.", 6); err != nil {
			t.Fatalf("Failed to enrich article %s: %v", externalID, err)
		}
	}
}

// countingInvalidator records cache invalidations
type countingInvalidator struct {
	mu    stdsync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// flakyStorage wraps a real store and fails the first failures upsert calls
type flakyStorage struct {
	storage.Storage

	mu       stdsync.Mutex
	calls    int
	failures int
	failErr  error
}

func (f *flakyStorage) UpsertSearchEntries(entries []models.SearchEntry) (int64, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call <= f.failures {
		return 0, f.failErr
	}
	return f.Storage.UpsertSearchEntries(entries)
}

func (f *flakyStorage) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSyncer_RunPass_MovesEnrichedArticles(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 2)

	// A third article stays unenriched and must not move
	if _, err := store.SaveArticle(&models.Candidate{
		ExternalID:  "sync-pending",
		Title:       "Pending Analysis",
		Content:     "Raw article awaiting enrichment.",
		URL:         "https://example.com/pending",
		PublishedAt: time.Now().UTC(),
		Source:      "test-source",
		Language:    "en",
	}); err != nil {
		t.Fatalf("Failed to save pending article: %v", err)
	}

	syncer := New(store, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if stats.Scanned != 2 {
		t.Errorf("Expected 2 scanned, got %d", stats.Scanned)
	}
	if stats.Upserted != 2 {
		t.Errorf("Expected 2 upserted, got %d", stats.Upserted)
	}
	if stats.Cleared != 2 {
		t.Errorf("Expected 2 cleared, got %d", stats.Cleared)
	}
	if stats.Failed != 0 {
		t.Errorf("Expected 0 failed, got %d", stats.Failed)
	}
	if stats.Abandoned {
		t.Error("Expected pass not to be abandoned")
	}

	// Moved articles are queryable in the search store with their enrichment
	entry, err := store.GetSearchEntry("sync-000")
	if err != nil {
		t.Fatalf("Failed to load search entry: %v", err)
	}
	if entry.AISummary != "Futures rose." {
		t.Errorf("Expected AI summary 'Futures rose.', got '%s'", entry.AISummary)
	}
	if entry.AISentimentRating != 6 {
		t.Errorf("Expected sentiment rating 6, got %d", entry.AISentimentRating)
	}

	// Buffer keeps only the unenriched article
	bufferStats, err := store.GetBufferStats()
	if err != nil {
		t.Fatalf("Failed to read buffer stats: %v", err)
	}
	if bufferStats.Total != 1 {
		t.Errorf("Expected 1 article left in buffer, got %d", bufferStats.Total)
	}
	if _, err := store.GetSearchEntry("sync-pending"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected unenriched article to stay out of the search store, got err=%v", err)
	}
}

func TestSyncer_RunPass_EmptyBuffer(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	syncer := New(store, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if stats.Scanned != 0 || stats.Upserted != 0 || stats.Cleared != 0 {
		t.Errorf("Expected empty pass, got scanned=%d upserted=%d cleared=%d",
			stats.Scanned, stats.Upserted, stats.Cleared)
	}
}

func TestSyncer_RunPass_Batching(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 2
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 5)

	flaky := &flakyStorage{Storage: store}
	syncer := New(flaky, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if stats.Upserted != 5 {
		t.Errorf("Expected 5 upserted, got %d", stats.Upserted)
	}
	if stats.Cleared != 5 {
		t.Errorf("Expected 5 cleared, got %d", stats.Cleared)
	}
	// 5 articles with batch size 2 means 3 upsert calls
	if got := flaky.callCount(); got != 3 {
		t.Errorf("Expected 3 upsert batches, got %d", got)
	}
}

func TestSyncer_RunPass_SecondPassFindsNothing(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 3)

	syncer := New(store, nil, cfg)

	if _, err := syncer.RunPass(context.Background()); err != nil {
		t.Fatalf("First pass failed: %v", err)
	}

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("Second pass failed: %v", err)
	}
	if stats.Scanned != 0 {
		t.Errorf("Expected second pass to find nothing, scanned %d", stats.Scanned)
	}

	status := syncer.Status()
	if status.Passes != 2 {
		t.Errorf("Expected 2 recorded passes, got %d", status.Passes)
	}
}

func TestSyncer_RunPass_FinishesInterruptedPass(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 2)

	// Simulate a pass that upserted but crashed before clearing the buffer
	articles, err := store.EnrichedUnsynced(0)
	if err != nil {
		t.Fatalf("Failed to select enriched articles: %v", err)
	}
	if _, err := store.UpsertSearchEntries(toSearchEntries(articles)); err != nil {
		t.Fatalf("Failed to upsert entries: %v", err)
	}

	syncer := New(store, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	// The rows are already in the search store, so nothing is re-upserted;
	// the pass just clears the leftovers
	if stats.Scanned != 0 {
		t.Errorf("Expected 0 scanned, got %d", stats.Scanned)
	}
	if stats.Cleared != 2 {
		t.Errorf("Expected 2 leftover rows cleared, got %d", stats.Cleared)
	}

	bufferStats, err := store.GetBufferStats()
	if err != nil {
		t.Fatalf("Failed to read buffer stats: %v", err)
	}
	if bufferStats.Total != 0 {
		t.Errorf("Expected empty buffer, got %d articles", bufferStats.Total)
	}
}

func TestSyncer_RunPass_RetriesTransientErrors(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 10
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 3)

	flaky := &flakyStorage{
		Storage:  store,
		failures: 2,
		failErr:  sqlite3.Error{Code: sqlite3.ErrBusy},
	}
	syncer := New(flaky, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}

	if stats.Abandoned {
		t.Error("Expected pass to recover after retries")
	}
	if stats.Upserted != 3 {
		t.Errorf("Expected 3 upserted, got %d", stats.Upserted)
	}
	if got := flaky.callCount(); got != 3 {
		t.Errorf("Expected 3 upsert attempts, got %d", got)
	}
}

func TestSyncer_RunPass_AbandonsAfterExhaustedRetries(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 10
	cfg.Sync.MaxRetries = 2
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 3)

	flaky := &flakyStorage{
		Storage:  store,
		failures: 100,
		failErr:  sqlite3.Error{Code: sqlite3.ErrBusy},
	}
	syncer := New(flaky, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}

	if !stats.Abandoned {
		t.Error("Expected pass to be abandoned")
	}
	if stats.Failed != 3 {
		t.Errorf("Expected 3 failed, got %d", stats.Failed)
	}
	if stats.Error == "" {
		t.Error("Expected pass error to be recorded")
	}
	if got := flaky.callCount(); got != 2 {
		t.Errorf("Expected 2 upsert attempts, got %d", got)
	}

	// Everything stays buffered for the next pass
	bufferStats, err := store.GetBufferStats()
	if err != nil {
		t.Fatalf("Failed to read buffer stats: %v", err)
	}
	if bufferStats.Total != 3 {
		t.Errorf("Expected 3 articles still buffered, got %d", bufferStats.Total)
	}
}

func TestSyncer_RunPass_NonRetryableFailsImmediately(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.BatchSize = 10
	store := newTestStorage(t, cfg)
	saveEnriched(t, store, 1)

	flaky := &flakyStorage{
		Storage:  store,
		failures: 100,
		failErr:  errors.New("database file is corrupted"),
	}
	syncer := New(flaky, nil, cfg)

	stats, err := syncer.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass returned error: %v", err)
	}

	if !stats.Abandoned {
		t.Error("Expected pass to be abandoned")
	}
	if got := flaky.callCount(); got != 1 {
		t.Errorf("Expected a single attempt for a non-retryable error, got %d", got)
	}
}

func TestSyncer_InvalidatorCalledOnlyAfterUpserts(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	invalidator := &countingInvalidator{}
	syncer := New(store, invalidator, cfg)

	// Empty pass must not flush the cache
	if _, err := syncer.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if got := invalidator.count(); got != 0 {
		t.Errorf("Expected no invalidation for empty pass, got %d", got)
	}

	saveEnriched(t, store, 1)
	if _, err := syncer.RunPass(context.Background()); err != nil {
		t.Fatalf("RunPass failed: %v", err)
	}
	if got := invalidator.count(); got != 1 {
		t.Errorf("Expected 1 invalidation after upserts, got %d", got)
	}
}

func TestSyncer_BackoffDelay(t *testing.T) {
	cfg := testSyncConfig()
	cfg.Sync.RetryBackoff = 100 * time.Millisecond
	cfg.Sync.RetryMaxDelay = 2 * time.Second
	syncer := New(nil, nil, cfg)

	// Jitter keeps each delay within 50-100% of the exponential base
	cases := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{attempt: 0, min: 50 * time.Millisecond, max: 100 * time.Millisecond},
		{attempt: 2, min: 200 * time.Millisecond, max: 400 * time.Millisecond},
		// Attempt 5 would be 3.2s, capped to the 2s ceiling
		{attempt: 5, min: time.Second, max: 2 * time.Second},
	}

	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			delay := syncer.backoffDelay(tc.attempt)
			if delay < tc.min || delay >= tc.max {
				t.Fatalf("Attempt %d: delay %v outside [%v, %v)", tc.attempt, delay, tc.min, tc.max)
			}
		}
	}
}

func TestSyncer_StartStop(t *testing.T) {
	cfg := testSyncConfig()
	store := newTestStorage(t, cfg)
	syncer := New(store, nil, cfg)

	syncer.Start()
	if !syncer.Status().Running {
		t.Error("Expected syncer to report running after Start")
	}

	// Second Start is a no-op
	syncer.Start()

	syncer.Stop()
	if syncer.Status().Running {
		t.Error("Expected syncer to report stopped after Stop")
	}

	// Second Stop is a no-op
	syncer.Stop()
}

func TestChunkArticles(t *testing.T) {
	articles := make([]models.BufferArticle, 5)

	batches := chunkArticles(articles, 2)
	if len(batches) != 3 {
		t.Fatalf("Expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Errorf("Unexpected batch sizes: %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}

	// Non-positive size falls back to a single batch
	batches = chunkArticles(articles, 0)
	if len(batches) != 1 || len(batches[0]) != 5 {
		t.Errorf("Expected one batch of 5, got %d batches", len(batches))
	}

	if batches := chunkArticles(nil, 2); len(batches) != 0 {
		t.Errorf("Expected no batches for empty input, got %d", len(batches))
	}
}
