package enrich

import (
	"context"
	"log"
	"sync"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/storage"

	"golang.org/x/time/rate"
)

// Worker fills in the AI fields of buffered articles. It runs on its own
// schedule and shares nothing with the sync pass; articles it has not
// reached yet simply stay in the buffer.
type Worker struct {
	storage storage.Storage
	client  *Client
	limiter *rate.Limiter
	config  *config.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	lastRun   time.Time
	enriched  int64
	failed    int64
}

// Status reports worker state for the API
type Status struct {
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	LastRun  time.Time `json:"last_run"`
	Enriched int64     `json:"enriched"`
	Failed   int64     `json:"failed"`
}

func NewWorker(store storage.Storage, cfg *config.Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		storage: store,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	if cfg.EnrichmentEnabled() {
		w.client = NewClient(cfg.Enrich.BaseURL, cfg.Enrich.APIKey, cfg.Enrich.Model, cfg.Enrich.RequestTimeout)
		w.limiter = rate.NewLimiter(rate.Limit(cfg.Enrich.RatePerSecond), cfg.Enrich.RateBurst)
	}

	return w
}

func (w *Worker) Start() {
	if !w.config.EnrichmentEnabled() {
		log.Println("Enrichment worker disabled (no API key configured)")
		return
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.mu.Unlock()

	log.Printf("Starting enrichment worker with interval: %v", w.config.Enrich.Interval)

	w.wg.Add(1)
	go w.runLoop()
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	log.Println("Stopping enrichment worker...")
	w.cancel()
	w.wg.Wait()
	log.Println("Enrichment worker stopped")
}

func (w *Worker) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Enrich.Interval)
	defer ticker.Stop()

	w.ProcessPending(w.ctx)

	for {
		select {
		case <-ticker.C:
			w.ProcessPending(w.ctx)
		case <-w.ctx.Done():
			return
		}
	}
}

// ProcessPending enriches one batch of pending articles. Failures are
// logged and the articles stay pending for the next tick.
func (w *Worker) ProcessPending(ctx context.Context) {
	articles, err := w.storage.PendingEnrichment(w.config.Enrich.BatchSize)
	if err != nil {
		log.Printf("Error loading pending articles for enrichment: %v", err)
		return
	}

	w.mu.Lock()
	w.lastRun = time.Now()
	w.mu.Unlock()

	if len(articles) == 0 {
		return
	}

	log.Printf("Enriching %d pending articles", len(articles))

	for idx := range articles {
		article := &articles[idx]

		if err := w.limiter.Wait(ctx); err != nil {
			log.Printf("Enrichment batch interrupted: %v", err)
			return
		}

		enrichment, err := w.client.Enrich(ctx, article)
		if err != nil {
			log.Printf("Error enriching article %s: %v", article.ExternalID, err)
			w.mu.Lock()
			w.failed++
			w.mu.Unlock()
			continue
		}

		err = w.storage.UpdateEnrichment(article.ExternalID, enrichment.Summary, enrichment.Insights, enrichment.SentimentRating)
		if err != nil {
			log.Printf("Error saving enrichment for %s: %v", article.ExternalID, err)
			w.mu.Lock()
			w.failed++
			w.mu.Unlock()
			continue
		}

		w.mu.Lock()
		w.enriched++
		w.mu.Unlock()
	}
}

func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return Status{
		Enabled:  w.config.EnrichmentEnabled(),
		Running:  w.isRunning,
		LastRun:  w.lastRun,
		Enriched: w.enriched,
		Failed:   w.failed,
	}
}
