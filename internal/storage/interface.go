package storage

import (
	"errors"
	"time"

	"finfeed/internal/models"
)

// Sentinel errors for storage lookups and inserts
var (
	ErrNotFound  = errors.New("article not found")
	ErrDuplicate = errors.New("duplicate article")
)

// Storage defines the interface for the buffer and search stores
type Storage interface {
	// Buffer store operations
	SaveArticle(candidate *models.Candidate) (int64, error)
	GetBufferArticle(externalID string) (*models.BufferArticle, error)
	PendingEnrichment(limit int) ([]models.BufferArticle, error)
	UpdateEnrichment(externalID, summary, insights string, rating int) error
	DeleteBufferArticles(ids []int64) (int64, error)
	GetBufferStats() (*models.BufferStats, error)

	// FindDuplicate checks both stores by external_id, URL, and title within
	// a publication window; it returns where the first match was found, or
	// the empty string when neither store contains the article
	FindDuplicate(externalID, url, title string, publishedAt time.Time, window time.Duration) (string, error)

	// Search store operations
	EnrichedUnsynced(limit int) ([]models.BufferArticle, error)
	EnrichedSynced(limit int) ([]models.BufferArticle, error)
	UpsertSearchEntries(entries []models.SearchEntry) (int64, error)
	ConfirmSearchPresence(externalIDs []string) ([]string, error)
	GetSearchEntry(externalID string) (*models.SearchEntry, error)
	QuerySearchEntries(query *models.SearchQuery) ([]models.SearchEntry, int, error)
	ListSymbols() ([]string, error)
	TopSymbols(limit int) ([]string, error)
	Close() error

	// Storage maintenance methods
	CleanupOldArticles(retention time.Duration) error
	OptimizeDatabase() error
	GetDatabaseStats() (map[string]interface{}, error)
}
