package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

// Result page sizes used for warming; large enough to cover a first page of
// results for the common queries
const (
	warmQueryLimit  = 20
	warmRecentLimit = 50
)

// Searcher is the cache-backed read path the warmer drives. Running queries
// through it populates the cache under the same keys real requests use.
type Searcher interface {
	Search(q *models.SearchQuery) (*models.SearchResult, error)
	ListSymbols() ([]string, error)
}

// WarmerStatus reports warmer state for the API
type WarmerStatus struct {
	Running  bool      `json:"running"`
	Interval string    `json:"interval"`
	LastRun  time.Time `json:"last_run"`
	Warmed   int       `json:"warmed"`
	Failures int       `json:"failures"`
}

// Warmer keeps the cache populated for popular queries: the configured
// search terms, the most recent entries, and the most tagged symbols. It is
// strictly best-effort and fully decoupled from sync passes; every failure
// is logged and swallowed, and a disabled cache just makes each run a no-op.
type Warmer struct {
	searcher Searcher
	storage  storage.Storage
	config   *config.Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	lastRun   time.Time
	warmed    int
	failures  int
}

func NewWarmer(searcher Searcher, store storage.Storage, cfg *config.Config) *Warmer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Warmer{
		searcher: searcher,
		storage:  store,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (w *Warmer) Start() {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = true
	w.mu.Unlock()

	log.Printf("Starting cache warmer with interval: %v", w.config.Warm.Interval)

	w.wg.Add(1)
	go w.runLoop()
}

func (w *Warmer) Stop() {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return
	}
	w.isRunning = false
	w.mu.Unlock()

	log.Println("Stopping cache warmer...")
	w.cancel()
	w.wg.Wait()
	log.Println("Cache warmer stopped")
}

func (w *Warmer) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Warm.Interval)
	defer ticker.Stop()

	w.RunOnce(w.ctx)

	for {
		select {
		case <-ticker.C:
			w.RunOnce(w.ctx)
		case <-w.ctx.Done():
			return
		}
	}
}

// RunOnce executes one warming round. Individual query failures are counted
// and logged but never abort the round.
func (w *Warmer) RunOnce(ctx context.Context) {
	var warmed, failures int

	run := func(q *models.SearchQuery) {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.searcher.Search(q); err != nil {
			failures++
			log.Printf("Warmer: query failed: %v", err)
			return
		}
		warmed++
	}

	// Most recent entries, the default landing query
	run(&models.SearchQuery{Top: warmRecentLimit})

	// Configured common query terms
	for _, term := range w.config.Warm.Queries {
		if term == "" {
			continue
		}
		run(&models.SearchQuery{Search: []string{term}, Top: warmQueryLimit})
	}

	// The symbol list itself, then per-symbol pages for the most tagged ones
	if _, err := w.searcher.ListSymbols(); err != nil {
		failures++
		log.Printf("Warmer: symbol listing failed: %v", err)
	} else {
		warmed++
	}

	symbols, err := w.storage.TopSymbols(w.config.Warm.SymbolLimit)
	if err != nil {
		failures++
		log.Printf("Warmer: top symbols failed: %v", err)
	} else {
		for _, symbol := range symbols {
			run(&models.SearchQuery{Symbol: symbol, Top: warmQueryLimit})
		}
	}

	w.mu.Lock()
	w.lastRun = time.Now()
	w.warmed += warmed
	w.failures += failures
	w.mu.Unlock()

	log.Printf("Warmer: round complete, %d queries warmed, %d failures", warmed, failures)
}

func (w *Warmer) Status() WarmerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return WarmerStatus{
		Running:  w.isRunning,
		Interval: w.config.Warm.Interval.String(),
		LastRun:  w.lastRun,
		Warmed:   w.warmed,
		Failures: w.failures,
	}
}
