package sync

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"

	"github.com/google/uuid"
)

// Invalidator drops cached query results after the search store changes
type Invalidator interface {
	Invalidate()
}

// Stats describes one sync pass
type Stats struct {
	PassID    string        `json:"pass_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Upserted  int           `json:"upserted"`
	Cleared   int           `json:"cleared"`
	Failed    int           `json:"failed"`
	Abandoned bool          `json:"abandoned"`
	Error     string        `json:"error,omitempty"`
}

// Status reports syncer state for the API
type Status struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval"`
	Passes   int64  `json:"passes"`
	LastPass *Stats `json:"last_pass,omitempty"`
}

// Syncer moves enriched buffer articles into the search store. Each pass
// upserts in bounded batches, confirms presence by external_id, and only
// then clears the buffer rows. Passes are idempotent, so an interrupted
// pass is simply finished by the next one.
type Syncer struct {
	storage     storage.Storage
	invalidator Invalidator
	config      *config.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// passMu serializes passes so a forced run cannot interleave with the
	// scheduled one
	passMu sync.Mutex

	mu        sync.RWMutex
	isRunning bool
	lastPass  *Stats
	passes    int64
}

func New(store storage.Storage, invalidator Invalidator, cfg *config.Config) *Syncer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Syncer{
		storage:     store,
		invalidator: invalidator,
		config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Syncer) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	log.Printf("Starting sync loop with interval: %v", s.config.Sync.Interval)

	s.wg.Add(1)
	go s.runLoop()
}

func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	log.Println("Stopping sync loop...")
	s.cancel()
	s.wg.Wait()
	log.Println("Sync loop stopped")
}

func (s *Syncer) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Sync.Interval)
	defer ticker.Stop()

	if _, err := s.RunPass(s.ctx); err != nil {
		log.Printf("Initial sync pass failed: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunPass(s.ctx); err != nil {
				log.Printf("Sync pass failed: %v", err)
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// RunPass performs a single sync pass and returns its stats. A batch that
// exhausts its retries abandons the remainder of the pass; everything it
// left behind is picked up by the next pass.
func (s *Syncer) RunPass(ctx context.Context) (*Stats, error) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	stats := &Stats{
		PassID:    uuid.New().String()[:8],
		StartedAt: time.Now(),
	}

	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		s.mu.Lock()
		s.lastPass = stats
		s.passes++
		s.mu.Unlock()
	}()

	// Finish any interrupted earlier pass first: rows already upserted but
	// never cleared are confirmed and removed before new work starts
	leftovers, err := s.storage.EnrichedSynced(0)
	if err != nil {
		stats.Error = err.Error()
		return stats, fmt.Errorf("failed to select leftover articles: %v", err)
	}
	if len(leftovers) > 0 {
		log.Printf("[SYNC-%s] Clearing %d buffer rows left by an earlier pass", stats.PassID, len(leftovers))
		for _, batch := range chunkArticles(leftovers, s.config.Sync.BatchSize) {
			s.clearConfirmed(batch, stats)
		}
	}

	articles, err := s.storage.EnrichedUnsynced(0)
	if err != nil {
		stats.Error = err.Error()
		return stats, fmt.Errorf("failed to select enriched articles: %v", err)
	}
	stats.Scanned = len(articles)

	if len(articles) == 0 {
		log.Printf("[SYNC-%s] Nothing to sync", stats.PassID)
		return stats, nil
	}

	log.Printf("[SYNC-%s] Syncing %d enriched articles", stats.PassID, len(articles))

	processed := 0
	for _, batch := range chunkArticles(articles, s.config.Sync.BatchSize) {
		entries := toSearchEntries(batch)

		err := s.withRetry(ctx, func() error {
			_, err := s.storage.UpsertSearchEntries(entries)
			return err
		})
		if err != nil {
			stats.Failed = stats.Scanned - processed
			stats.Abandoned = true
			stats.Error = err.Error()
			log.Printf("[SYNC-%s] Batch upsert failed, abandoning pass with %d articles left: %v",
				stats.PassID, stats.Failed, err)
			break
		}
		stats.Upserted += len(batch)

		s.clearConfirmed(batch, stats)
		processed += len(batch)
	}

	if stats.Upserted > 0 && s.invalidator != nil {
		s.invalidator.Invalidate()
	}

	log.Printf("[SYNC-%s] Pass complete: scanned %d, upserted %d, cleared %d, failed %d",
		stats.PassID, stats.Scanned, stats.Upserted, stats.Cleared, stats.Failed)
	return stats, nil
}

// clearConfirmed deletes the buffer rows of a batch whose external_ids are
// verifiably present in the search store. Unconfirmed or undeletable rows
// stay buffered; the next pass upserts them again.
func (s *Syncer) clearConfirmed(batch []models.BufferArticle, stats *Stats) {
	externalIDs := make([]string, 0, len(batch))
	for idx := range batch {
		externalIDs = append(externalIDs, batch[idx].ExternalID)
	}

	confirmed, err := s.storage.ConfirmSearchPresence(externalIDs)
	if err != nil {
		stats.Failed += len(batch)
		log.Printf("[SYNC-%s] Presence check failed, leaving %d articles in buffer: %v",
			stats.PassID, len(batch), err)
		return
	}

	confirmedSet := make(map[string]bool, len(confirmed))
	for _, externalID := range confirmed {
		confirmedSet[externalID] = true
	}

	var ids []int64
	for idx := range batch {
		if confirmedSet[batch[idx].ExternalID] {
			ids = append(ids, batch[idx].ID)
		}
	}

	if unconfirmed := len(batch) - len(ids); unconfirmed > 0 {
		stats.Failed += unconfirmed
		log.Printf("[SYNC-%s] %d upserted articles not confirmed in search store, leaving in buffer",
			stats.PassID, unconfirmed)
	}

	deleted, err := s.storage.DeleteBufferArticles(ids)
	if err != nil {
		stats.Failed += len(ids)
		log.Printf("[SYNC-%s] Buffer clear failed, leaving %d articles in buffer: %v",
			stats.PassID, len(ids), err)
		return
	}
	stats.Cleared += int(deleted)
}

// withRetry runs fn up to the configured attempts with exponential backoff
// and jitter, retrying only errors the storage layer marks as transient
func (s *Syncer) withRetry(ctx context.Context, fn func() error) error {
	maxAttempts := s.config.Sync.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %v", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !storage.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt < maxAttempts-1 {
			delay := s.backoffDelay(attempt)
			log.Printf("Retryable storage error (attempt %d/%d), backing off %v: %v",
				attempt+1, maxAttempts, delay, lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %v", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %v", maxAttempts, lastErr)
}

// backoffDelay computes the delay for a given attempt index, applying
// exponential growth with 50-100% jitter
func (s *Syncer) backoffDelay(attempt int) time.Duration {
	delay := s.config.Sync.RetryBackoff * (1 << attempt)
	if max := s.config.Sync.RetryMaxDelay; max > 0 && delay > max {
		delay = max
	}
	half := delay / 2
	if half <= 0 {
		return delay
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}

func (s *Syncer) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		Running:  s.isRunning,
		Interval: s.config.Sync.Interval.String(),
		Passes:   s.passes,
	}
	if s.lastPass != nil {
		passCopy := *s.lastPass
		status.LastPass = &passCopy
	}
	return status
}

func chunkArticles(articles []models.BufferArticle, size int) [][]models.BufferArticle {
	if size <= 0 {
		return [][]models.BufferArticle{articles}
	}

	var batches [][]models.BufferArticle
	for size < len(articles) {
		batches = append(batches, articles[:size])
		articles = articles[size:]
	}
	if len(articles) > 0 {
		batches = append(batches, articles)
	}
	return batches
}

func toSearchEntries(articles []models.BufferArticle) []models.SearchEntry {
	entries := make([]models.SearchEntry, 0, len(articles))
	for idx := range articles {
		a := &articles[idx]
		entry := models.SearchEntry{
			ExternalID:     a.ExternalID,
			Title:          a.Title,
			URL:            a.URL,
			PublishedAt:    a.PublishedAt,
			Source:         a.Source,
			Sentiment:      a.Sentiment,
			SentimentScore: a.SentimentScore,
			Language:       a.Language,
			Symbols:        a.Symbols,
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
		entries = append(entries, entry)
	}
	return entries
}
