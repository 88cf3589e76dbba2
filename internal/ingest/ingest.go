package ingest

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
	"finfeed/internal/storage"
)

// Result records what happened to a single candidate
type Result struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}

// Stats summarizes one ingestion round
type Stats struct {
	Received   int      `json:"received"`
	Saved      int      `json:"saved"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Ingester normalizes candidates and writes them to the buffer store. Every
// candidate is checked against both stores before insertion; the database
// uniqueness constraint backs this up under concurrency.
type Ingester struct {
	storage storage.Storage
	config  *config.Config
}

func New(store storage.Storage, cfg *config.Config) *Ingester {
	return &Ingester{
		storage: store,
		config:  cfg,
	}
}

func (i *Ingester) Ingest(ctx context.Context, candidates []models.Candidate) *Stats {
	stats := &Stats{Received: len(candidates)}

	for idx := range candidates {
		select {
		case <-ctx.Done():
			log.Printf("Ingestion interrupted after %d of %d candidates: %v", idx, len(candidates), ctx.Err())
			return stats
		default:
		}

		candidate := &candidates[idx]
		i.Normalize(candidate)

		result := i.ingestOne(candidate)
		switch result.Status {
		case "saved":
			stats.Saved++
		case "duplicate":
			stats.Duplicates++
		default:
			stats.Failed++
		}
		stats.Results = append(stats.Results, result)
	}

	log.Printf("Ingested %d candidates: %d saved, %d duplicates, %d failed",
		stats.Received, stats.Saved, stats.Duplicates, stats.Failed)
	return stats
}

func (i *Ingester) ingestOne(candidate *models.Candidate) Result {
	if candidate.ExternalID == "" || candidate.Title == "" {
		return Result{
			ExternalID: candidate.ExternalID,
			Status:     "failed",
			Reason:     "missing external_id or title",
		}
	}

	location, err := i.storage.FindDuplicate(candidate.ExternalID, candidate.URL, candidate.Title,
		candidate.PublishedAt, i.config.DuplicateWindow)
	if err != nil {
		log.Printf("Error checking duplicates for %s: %v", candidate.ExternalID, err)
		return Result{ExternalID: candidate.ExternalID, Status: "failed", Reason: err.Error()}
	}
	if location != "" {
		return Result{ExternalID: candidate.ExternalID, Status: "duplicate", Reason: location}
	}

	if _, err := i.storage.SaveArticle(candidate); err != nil {
		// A concurrent insert of the same article can win between the
		// duplicate check and the save; the constraint makes that a skip
		if errors.Is(err, storage.ErrDuplicate) {
			return Result{ExternalID: candidate.ExternalID, Status: "duplicate", Reason: "unique constraint"}
		}
		log.Printf("Error saving article %s: %v", candidate.ExternalID, err)
		return Result{ExternalID: candidate.ExternalID, Status: "failed", Reason: err.Error()}
	}

	return Result{ExternalID: candidate.ExternalID, Status: "saved"}
}

// Normalize prepares a candidate for storage: markdown content, trimmed
// title, upper-cased deduplicated symbols, and a publication time.
func (i *Ingester) Normalize(candidate *models.Candidate) {
	candidate.Title = strings.TrimSpace(candidate.Title)
	candidate.Content = convertHTMLToMarkdown(candidate.Content)
	candidate.Symbols = normalizeSymbols(candidate.Symbols)

	if max := i.config.MaxContentLength; max > 0 && len(candidate.Content) > max {
		candidate.Content = candidate.Content[:max]
	}

	if candidate.PublishedAt.IsZero() {
		candidate.PublishedAt = time.Now().UTC()
	}
}
