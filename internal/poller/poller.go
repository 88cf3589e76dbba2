package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/feeds"
	"finfeed/internal/ingest"
)

// Per-source fetch budget; a slow upstream cannot stall the whole poll round
const fetchTimeout = 45 * time.Second

// SourceStatus describes the last poll of a single source
type SourceStatus struct {
	Name       string    `json:"name"`
	LastPolled time.Time `json:"last_polled"`
	LastCount  int       `json:"last_count"`
	LastError  string    `json:"last_error,omitempty"`
}

// Status reports poller state for the API
type Status struct {
	Polling  bool           `json:"polling"`
	Interval string         `json:"interval"`
	Sources  []SourceStatus `json:"sources"`
}

// Poller periodically pulls candidates from all configured sources and hands
// them to the ingester. Sources are fetched in parallel; ingestion happens
// serially as results arrive so the single sqlite writer is not contended.
type Poller struct {
	sources  []feeds.Source
	ingester *ingest.Ingester
	interval time.Duration
	maxAge   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.RWMutex
	lastPolled map[string]time.Time
	lastCount  map[string]int
	lastError  map[string]string
	isPolling  bool
}

func New(sources []feeds.Source, ingester *ingest.Ingester, cfg *config.Config) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		sources:    sources,
		ingester:   ingester,
		interval:   cfg.PollInterval,
		maxAge:     cfg.MaxArticleAge,
		ctx:        ctx,
		cancel:     cancel,
		lastPolled: make(map[string]time.Time),
		lastCount:  make(map[string]int),
		lastError:  make(map[string]string),
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = true
	p.mu.Unlock()

	log.Printf("Starting news poller with %d sources, interval: %v", len(p.sources), p.interval)

	p.wg.Add(1)
	go p.pollLoop()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.isPolling {
		p.mu.Unlock()
		return
	}
	p.isPolling = false
	p.mu.Unlock()

	log.Println("Stopping news poller...")
	p.cancel()
	p.wg.Wait()
	log.Println("News poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Poll immediately on start
	p.PollAll()

	for {
		select {
		case <-ticker.C:
			p.PollAll()
		case <-p.ctx.Done():
			return
		}
	}
}

type sourceResult struct {
	name       string
	candidates int
	saved      int
	err        error
}

// PollAll fetches every source in parallel and ingests the results. Source
// failures are recorded and do not affect the other sources.
func (p *Poller) PollAll() {
	if len(p.sources) == 0 {
		log.Println("Poller has no sources configured")
		return
	}

	log.Println("Starting poll round...")

	var wg sync.WaitGroup
	results := make(chan sourceResult, len(p.sources))

	for _, source := range p.sources {
		wg.Add(1)
		go func(src feeds.Source) {
			defer wg.Done()
			results <- p.pollSource(src)
		}(source)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var fetched, saved, failures int
	for result := range results {
		if result.err != nil {
			failures++
			log.Printf("Error polling source %s: %v", result.name, result.err)
			continue
		}
		fetched += result.candidates
		saved += result.saved
	}

	log.Printf("Poll round completed: %d candidates fetched, %d saved, %d sources failed",
		fetched, saved, failures)
}

// pollSource fetches one source since its last successful poll and pushes the
// candidates through the ingester
func (p *Poller) pollSource(src feeds.Source) sourceResult {
	name := src.Name()
	started := time.Now()

	p.mu.RLock()
	since := p.lastPolled[name]
	p.mu.RUnlock()

	// The very first poll is bounded by the retention window instead of
	// pulling the source's full history
	if since.IsZero() && p.maxAge > 0 {
		since = started.Add(-p.maxAge)
	}

	ctx, cancel := context.WithTimeout(p.ctx, fetchTimeout)
	defer cancel()

	candidates, err := src.Fetch(ctx, since)

	p.mu.Lock()
	if err != nil {
		p.lastError[name] = err.Error()
		p.mu.Unlock()
		return sourceResult{name: name, err: err}
	}
	delete(p.lastError, name)
	p.lastPolled[name] = started
	p.lastCount[name] = len(candidates)
	p.mu.Unlock()

	if len(candidates) == 0 {
		return sourceResult{name: name}
	}

	// Duplicate checking makes overlapping fetch windows harmless
	stats := p.ingester.Ingest(ctx, candidates)
	return sourceResult{name: name, candidates: len(candidates), saved: stats.Saved}
}

// ForcePoll polls a single source by name outside the schedule
func (p *Poller) ForcePoll(name string) error {
	log.Printf("Force polling source: %s", name)

	for _, source := range p.sources {
		if source.Name() == name {
			if result := p.pollSource(source); result.err != nil {
				return fmt.Errorf("failed to poll source '%s': %v", name, result.err)
			}
			return nil
		}
	}

	return fmt.Errorf("source '%s' not found", name)
}

func (p *Poller) IsPolling() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isPolling
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := Status{
		Polling:  p.isPolling,
		Interval: p.interval.String(),
	}

	for _, source := range p.sources {
		name := source.Name()
		status.Sources = append(status.Sources, SourceStatus{
			Name:       name,
			LastPolled: p.lastPolled[name],
			LastCount:  p.lastCount[name],
			LastError:  p.lastError[name],
		})
	}

	return status
}
