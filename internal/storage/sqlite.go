package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"

	"github.com/mattn/go-sqlite3"
	"github.com/pemistahl/lingua-go"
)

// getGoroutineID returns a unique identifier for the current goroutine
func getGoroutineID() uint64 {
	numGoroutines := runtime.NumGoroutine()
	if numGoroutines < 0 {
		return 0
	}
	return uint64(numGoroutines) + uint64(time.Now().UnixNano()%1000)
}

type SQLiteStorage struct {
	db       *sql.DB
	config   *config.Config
	detector lingua.LanguageDetector
	mutex    sync.RWMutex
}

func NewSQLiteStorage(dataDir string, cfg *config.Config) (*SQLiteStorage, error) {
	// Ensure data directory exists with secure permissions (0750)
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "finfeed.db")
	log.Printf("Initializing database at: %s", dbPath)

	// Check if database exists and validate schema
	needsRecreation := false

	// Check for force recreation environment variable
	if os.Getenv("FORCE_DB_RECREATE") == "true" {
		log.Printf("Force database recreation requested via environment variable")
		needsRecreation = true
	} else if _, err := os.Stat(dbPath); err == nil {
		// Database exists, validate schema
		log.Printf("Database exists, validating schema...")
		if !validateSchema(dbPath) {
			log.Printf("Database schema validation failed, will recreate database")
			needsRecreation = true
		}
	} else {
		// Database doesn't exist, will create it
		log.Printf("Database doesn't exist, will create new database")
		needsRecreation = true
	}

	// If recreation is needed, remove existing database
	if needsRecreation {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove existing database: %v", err)
		}
		log.Printf("Creating new database with proper schema")
	} else {
		log.Printf("Using existing database with valid schema")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_timeout=30000&_busy_timeout=30000&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	// Enable foreign keys so symbols and metrics cascade with their article
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	// Set additional PRAGMA settings for better performance and reliability
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	// Create tables with proper indexing
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	// Initialize language detector with the languages financial news
	// sources commonly publish in
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.German, lingua.French, lingua.Spanish,
			lingua.Chinese, lingua.Japanese, lingua.Russian, lingua.Portuguese,
		).
		Build()

	return &SQLiteStorage{
		db:       db,
		config:   cfg,
		detector: detector,
	}, nil
}

func createTables(db *sql.DB) error {
	// Buffer store: mutable holding area for articles awaiting enrichment.
	// external_id carries the uniqueness constraint that makes duplicate
	// detection and re-sync safe.
	bufferTables := `
	CREATE TABLE IF NOT EXISTS buffer_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT UNIQUE NOT NULL, -- source-assigned identifier
		title TEXT NOT NULL,
		content TEXT,
		url TEXT NOT NULL,
		published_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		sentiment TEXT DEFAULT 'neutral',
		sentiment_score REAL DEFAULT 0,
		language TEXT DEFAULT 'en',
		ai_summary TEXT,            -- NULL until enrichment
		ai_insights TEXT,           -- NULL until enrichment
		ai_sentiment_rating INTEGER, -- NULL until enrichment
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Symbol tags owned by a buffer article, removed with it
	CREATE TABLE IF NOT EXISTS article_symbols (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (article_id) REFERENCES buffer_articles(id) ON DELETE CASCADE,
		UNIQUE(article_id, symbol) -- Prevent duplicate tags
	);

	-- Numeric metrics owned by a buffer article, removed with it
	CREATE TABLE IF NOT EXISTS article_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (article_id) REFERENCES buffer_articles(id) ON DELETE CASCADE
	);`

	// Search store: append-mostly system of record for search. buffer_id is
	// deliberately not a foreign key so entries survive buffer clearing.
	searchTable := `
	CREATE TABLE IF NOT EXISTS search_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		published_at DATETIME NOT NULL,
		source TEXT NOT NULL,
		ai_summary TEXT NOT NULL,
		ai_insights TEXT NOT NULL,
		ai_sentiment_rating INTEGER NOT NULL,
		sentiment TEXT DEFAULT 'neutral',
		sentiment_score REAL DEFAULT 0,
		language TEXT DEFAULT 'en',
		symbols TEXT, -- JSON array
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		buffer_id INTEGER
	);`

	// Create indexes for fast duplicate checks and search queries
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_buffer_published_at ON buffer_articles(published_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_buffer_source ON buffer_articles(source);",
		"CREATE INDEX IF NOT EXISTS idx_buffer_title ON buffer_articles(title);",
		"CREATE INDEX IF NOT EXISTS idx_buffer_url ON buffer_articles(url);",
		"CREATE INDEX IF NOT EXISTS idx_symbols_article ON article_symbols(article_id);",
		"CREATE INDEX IF NOT EXISTS idx_symbols_symbol ON article_symbols(symbol);",
		"CREATE INDEX IF NOT EXISTS idx_metrics_article ON article_metrics(article_id);",
		"CREATE INDEX IF NOT EXISTS idx_search_published_at ON search_entries(published_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_search_source ON search_entries(source);",
		"CREATE INDEX IF NOT EXISTS idx_search_title ON search_entries(title);",
		"CREATE INDEX IF NOT EXISTS idx_search_url ON search_entries(url);",
		"CREATE INDEX IF NOT EXISTS idx_search_sentiment ON search_entries(sentiment);",
		"CREATE INDEX IF NOT EXISTS idx_search_published_source ON search_entries(published_at DESC, source);",
	}

	// Execute table creation
	if _, err := db.Exec(bufferTables); err != nil {
		return fmt.Errorf("failed to create buffer tables: %v", err)
	}

	if _, err := db.Exec(searchTable); err != nil {
		return fmt.Errorf("failed to create search_entries table: %v", err)
	}

	// Execute index creation
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			return fmt.Errorf("failed to create index: %v", err)
		}
	}

	return nil
}

// validateSchema checks if the database has the correct schema
func validateSchema(dbPath string) bool {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Printf("Failed to open database for schema validation: %v", err)
		return false
	}
	defer db.Close()

	// Check if required tables exist
	requiredTables := []string{"buffer_articles", "article_symbols", "article_metrics", "search_entries"}
	for _, table := range requiredTables {
		var count int
		query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
		err := db.QueryRow(query, table).Scan(&count)
		if err != nil || count == 0 {
			log.Printf("Missing required table: %s", table)
			return false
		}
	}

	// Check if buffer_articles table has all required columns
	requiredBufferColumns := []string{
		"id", "external_id", "title", "content", "url", "published_at",
		"source", "sentiment", "sentiment_score", "language",
		"ai_summary", "ai_insights", "ai_sentiment_rating", "created_at",
	}
	for _, column := range requiredBufferColumns {
		var count int
		query := "SELECT COUNT(*) FROM pragma_table_info('buffer_articles') WHERE name=?"
		err := db.QueryRow(query, column).Scan(&count)
		if err != nil || count == 0 {
			log.Printf("Missing required column in buffer_articles table: %s", column)
			return false
		}
	}

	// Check if search_entries table has all required columns
	requiredSearchColumns := []string{
		"id", "external_id", "title", "url", "published_at", "source",
		"ai_summary", "ai_insights", "ai_sentiment_rating", "sentiment",
		"sentiment_score", "language", "symbols", "created_at", "updated_at",
		"buffer_id",
	}
	for _, column := range requiredSearchColumns {
		var count int
		query := "SELECT COUNT(*) FROM pragma_table_info('search_entries') WHERE name=?"
		err := db.QueryRow(query, column).Scan(&count)
		if err != nil || count == 0 {
			log.Printf("Missing required column in search_entries table: %s", column)
			return false
		}
	}

	// Check if article_symbols table has required columns
	symbolColumns := []string{"id", "article_id", "symbol"}
	for _, column := range symbolColumns {
		var count int
		query := "SELECT COUNT(*) FROM pragma_table_info('article_symbols') WHERE name=?"
		err := db.QueryRow(query, column).Scan(&count)
		if err != nil || count == 0 {
			log.Printf("Missing required column in article_symbols table: %s", column)
			return false
		}
	}

	log.Printf("Database schema validation passed")
	return true
}

// isUniqueConstraint reports whether err is a sqlite uniqueness violation
func isUniqueConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// IsRetryable reports whether err is a transient lock or timeout error
// worth retrying before the next scheduled pass
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// scanner lets row scanning helpers work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBufferArticle(row scanner) (*models.BufferArticle, error) {
	var article models.BufferArticle
	var content sql.NullString
	var summary sql.NullString
	var insights sql.NullString
	var rating sql.NullInt64

	err := row.Scan(
		&article.ID,
		&article.ExternalID,
		&article.Title,
		&content,
		&article.URL,
		&article.PublishedAt,
		&article.Source,
		&article.Sentiment,
		&article.SentimentScore,
		&article.Language,
		&summary,
		&insights,
		&rating,
		&article.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	article.Content = content.String
	if summary.Valid {
		article.AISummary = &summary.String
	}
	if insights.Valid {
		article.AIInsights = &insights.String
	}
	if rating.Valid {
		r := int(rating.Int64)
		article.AISentimentRating = &r
	}

	return &article, nil
}

func scanSearchEntry(row scanner) (*models.SearchEntry, error) {
	var entry models.SearchEntry
	var symbolsJSON sql.NullString
	var bufferID sql.NullInt64

	err := row.Scan(
		&entry.ID,
		&entry.ExternalID,
		&entry.Title,
		&entry.URL,
		&entry.PublishedAt,
		&entry.Source,
		&entry.AISummary,
		&entry.AIInsights,
		&entry.AISentimentRating,
		&entry.Sentiment,
		&entry.SentimentScore,
		&entry.Language,
		&symbolsJSON,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&bufferID,
	)
	if err != nil {
		return nil, err
	}

	if symbolsJSON.Valid && symbolsJSON.String != "" {
		if err := json.Unmarshal([]byte(symbolsJSON.String), &entry.Symbols); err != nil {
			log.Printf("Warning: failed to parse symbols for entry %s: %v", entry.ExternalID, err)
			entry.Symbols = []string{}
		}
	}
	if bufferID.Valid {
		id := bufferID.Int64
		entry.BufferID = &id
	}

	return &entry, nil
}

// SaveArticle inserts a candidate into the buffer store together with its
// symbols and metrics. A uniqueness violation on external_id is reported as
// ErrDuplicate so callers can treat a lost insert race as a skip.
func (s *SQLiteStorage) SaveArticle(c *models.Candidate) (int64, error) {
	log.Printf("SaveArticle: [THREAD-%d] Saving article %s from source '%s'", getGoroutineID(), c.ExternalID, c.Source)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}

	// Track if transaction was committed
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback transaction: %v", err)
			}
		}
	}()

	content := cleanAndOptimizeContent(c.Content)
	if max := s.config.MaxContentLength; max > 0 && len(content) > max {
		content = content[:max]
	}

	language := c.Language
	if language == "" {
		language = s.detectLanguage(c.Title + " " + content)
	}

	sentiment := c.Sentiment
	if sentiment == "" {
		sentiment = "neutral"
	}

	result, err := tx.Exec(`
		INSERT INTO buffer_articles (external_id, title, content, url, published_at, source, sentiment, sentiment_score, language)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ExternalID, c.Title, content, c.URL, c.PublishedAt, c.Source, sentiment, c.SentimentScore, language)
	if err != nil {
		if isUniqueConstraint(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("failed to insert article %s: %v", c.ExternalID, err)
	}

	articleID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get article ID: %v", err)
	}

	if len(c.Symbols) > 0 {
		stmt, err := tx.Prepare("INSERT OR IGNORE INTO article_symbols (article_id, symbol) VALUES (?, ?)")
		if err != nil {
			return 0, fmt.Errorf("failed to prepare symbol statement: %v", err)
		}
		defer func() {
			if err := stmt.Close(); err != nil {
				log.Printf("Warning: failed to close symbol statement: %v", err)
			}
		}()

		for _, symbol := range c.Symbols {
			symbol = strings.ToUpper(strings.TrimSpace(symbol))
			if symbol == "" {
				continue
			}
			if _, err := stmt.Exec(articleID, symbol); err != nil {
				return 0, fmt.Errorf("failed to insert symbol %s for article %s: %v", symbol, c.ExternalID, err)
			}
		}
	}

	if len(c.Metrics) > 0 {
		stmt, err := tx.Prepare("INSERT INTO article_metrics (article_id, name, value) VALUES (?, ?, ?)")
		if err != nil {
			return 0, fmt.Errorf("failed to prepare metric statement: %v", err)
		}
		defer func() {
			if err := stmt.Close(); err != nil {
				log.Printf("Warning: failed to close metric statement: %v", err)
			}
		}()

		for _, metric := range c.Metrics {
			if metric.Name == "" {
				continue
			}
			if _, err := stmt.Exec(articleID, metric.Name, metric.Value); err != nil {
				return 0, fmt.Errorf("failed to insert metric %s for article %s: %v", metric.Name, c.ExternalID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %v", err)
	}
	committed = true

	log.Printf("SaveArticle: [THREAD-%d] Saved article %s with ID %d", getGoroutineID(), c.ExternalID, articleID)
	return articleID, nil
}

func (s *SQLiteStorage) GetBufferArticle(externalID string) (*models.BufferArticle, error) {
	row := s.db.QueryRow(`
		SELECT id, external_id, title, content, url, published_at, source, sentiment, sentiment_score, language, ai_summary, ai_insights, ai_sentiment_rating, created_at
		FROM buffer_articles
		WHERE external_id = ?
	`, externalID)

	article, err := scanBufferArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load buffer article %s: %v", externalID, err)
	}

	symbols, err := s.articleSymbols(article.ID)
	if err != nil {
		return nil, err
	}
	article.Symbols = symbols

	metrics, err := s.articleMetrics(article.ID)
	if err != nil {
		return nil, err
	}
	article.Metrics = metrics

	return article, nil
}

func (s *SQLiteStorage) articleSymbols(articleID int64) ([]string, error) {
	rows, err := s.db.Query("SELECT symbol FROM article_symbols WHERE article_id = ? ORDER BY symbol", articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %v", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %v", err)
		}
		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

func (s *SQLiteStorage) articleMetrics(articleID int64) ([]models.Metric, error) {
	rows, err := s.db.Query("SELECT id, article_id, name, value FROM article_metrics WHERE article_id = ? ORDER BY name", articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %v", err)
	}
	defer rows.Close()

	var metrics []models.Metric
	for rows.Next() {
		var metric models.Metric
		if err := rows.Scan(&metric.ID, &metric.ArticleID, &metric.Name, &metric.Value); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %v", err)
		}
		metrics = append(metrics, metric)
	}

	return metrics, rows.Err()
}

// FindDuplicate checks both stores for an existing article matching the
// candidate. The title comparison is bounded to publications within the
// window around publishedAt so recurring headlines are not misdetected.
func (s *SQLiteStorage) FindDuplicate(externalID, url, title string, publishedAt time.Time, window time.Duration) (string, error) {
	var count int

	err := s.db.QueryRow("SELECT COUNT(*) FROM buffer_articles WHERE external_id = ?", externalID).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to check buffer store by external_id: %v", err)
	}
	if count > 0 {
		return "buffer:external_id", nil
	}

	err = s.db.QueryRow("SELECT COUNT(*) FROM search_entries WHERE external_id = ?", externalID).Scan(&count)
	if err != nil {
		return "", fmt.Errorf("failed to check search store by external_id: %v", err)
	}
	if count > 0 {
		return "search:external_id", nil
	}

	if url != "" {
		err = s.db.QueryRow("SELECT COUNT(*) FROM buffer_articles WHERE url = ?", url).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check buffer store by url: %v", err)
		}
		if count > 0 {
			return "buffer:url", nil
		}

		err = s.db.QueryRow("SELECT COUNT(*) FROM search_entries WHERE url = ?", url).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check search store by url: %v", err)
		}
		if count > 0 {
			return "search:url", nil
		}
	}

	if title != "" && window > 0 {
		from := publishedAt.Add(-window)
		to := publishedAt.Add(window)

		err = s.db.QueryRow("SELECT COUNT(*) FROM buffer_articles WHERE title = ? AND published_at BETWEEN ? AND ?", title, from, to).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check buffer store by title: %v", err)
		}
		if count > 0 {
			return "buffer:title", nil
		}

		err = s.db.QueryRow("SELECT COUNT(*) FROM search_entries WHERE title = ? AND published_at BETWEEN ? AND ?", title, from, to).Scan(&count)
		if err != nil {
			return "", fmt.Errorf("failed to check search store by title: %v", err)
		}
		if count > 0 {
			return "search:title", nil
		}
	}

	return "", nil
}

// PendingEnrichment returns buffer articles still missing one or more AI
// fields, oldest first
func (s *SQLiteStorage) PendingEnrichment(limit int) ([]models.BufferArticle, error) {
	query := `
		SELECT id, external_id, title, content, url, published_at, source, sentiment, sentiment_score, language, ai_summary, ai_insights, ai_sentiment_rating, created_at
		FROM buffer_articles
		WHERE ai_summary IS NULL OR ai_summary = ''
		   OR ai_insights IS NULL OR ai_insights = ''
		   OR ai_sentiment_rating IS NULL
		ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending articles: %v", err)
	}
	defer rows.Close()

	var articles []models.BufferArticle
	for rows.Next() {
		article, err := scanBufferArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %v", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	return articles, nil
}

func (s *SQLiteStorage) UpdateEnrichment(externalID, summary, insights string, rating int) error {
	result, err := s.db.Exec(`
		UPDATE buffer_articles
		SET ai_summary = ?, ai_insights = ?, ai_sentiment_rating = ?
		WHERE external_id = ?
	`, summary, insights, rating, externalID)
	if err != nil {
		return fmt.Errorf("failed to update enrichment for article %s: %v", externalID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// EnrichedUnsynced returns fully enriched buffer articles whose external_id
// is not yet present in the search store, oldest first. Symbols are loaded
// so the rows can be upserted without further reads.
func (s *SQLiteStorage) EnrichedUnsynced(limit int) ([]models.BufferArticle, error) {
	query := `
		SELECT id, external_id, title, content, url, published_at, source, sentiment, sentiment_score, language, ai_summary, ai_insights, ai_sentiment_rating, created_at
		FROM buffer_articles
		WHERE ai_summary IS NOT NULL AND ai_summary != ''
		  AND ai_insights IS NOT NULL AND ai_insights != ''
		  AND ai_sentiment_rating IS NOT NULL
		  AND external_id NOT IN (SELECT external_id FROM search_entries)
		ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query enriched articles: %v", err)
	}
	defer rows.Close()

	var articles []models.BufferArticle
	for rows.Next() {
		article, err := scanBufferArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %v", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	for i := range articles {
		symbols, err := s.articleSymbols(articles[i].ID)
		if err != nil {
			return nil, err
		}
		articles[i].Symbols = symbols
	}

	return articles, nil
}

// EnrichedSynced returns enriched buffer articles whose external_id is
// already present in the search store. These are leftovers from a pass that
// upserted but never got to clear its buffer rows.
func (s *SQLiteStorage) EnrichedSynced(limit int) ([]models.BufferArticle, error) {
	query := `
		SELECT id, external_id, title, content, url, published_at, source, sentiment, sentiment_score, language, ai_summary, ai_insights, ai_sentiment_rating, created_at
		FROM buffer_articles
		WHERE ai_summary IS NOT NULL AND ai_summary != ''
		  AND ai_insights IS NOT NULL AND ai_insights != ''
		  AND ai_sentiment_rating IS NOT NULL
		  AND external_id IN (SELECT external_id FROM search_entries)
		ORDER BY created_at ASC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query synced articles: %v", err)
	}
	defer rows.Close()

	var articles []models.BufferArticle
	for rows.Next() {
		article, err := scanBufferArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %v", err)
		}
		articles = append(articles, *article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	return articles, nil
}

// UpsertSearchEntries writes entries into the search store in a single
// transaction. Existing rows with the same external_id are updated in place,
// which keeps re-running a sync pass idempotent.
func (s *SQLiteStorage) UpsertSearchEntries(entries []models.SearchEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	log.Printf("UpsertSearchEntries: [THREAD-%d] Upserting %d entries", getGoroutineID(), len(entries))

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}

	// Track if transaction was committed
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback transaction: %v", err)
			}
		}
	}()

	stmt, err := tx.Prepare(`
		INSERT INTO search_entries (external_id, title, url, published_at, source, ai_summary, ai_insights, ai_sentiment_rating, sentiment, sentiment_score, language, symbols, buffer_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			published_at = excluded.published_at,
			source = excluded.source,
			ai_summary = excluded.ai_summary,
			ai_insights = excluded.ai_insights,
			ai_sentiment_rating = excluded.ai_sentiment_rating,
			sentiment = excluded.sentiment,
			sentiment_score = excluded.sentiment_score,
			language = excluded.language,
			symbols = excluded.symbols,
			buffer_id = excluded.buffer_id,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert statement: %v", err)
	}
	defer func() {
		if err := stmt.Close(); err != nil {
			log.Printf("Warning: failed to close upsert statement: %v", err)
		}
	}()

	var upserted int64
	for _, entry := range entries {
		symbolsJSON, _ := json.Marshal(entry.Symbols)

		_, err := stmt.Exec(entry.ExternalID, entry.Title, entry.URL, entry.PublishedAt, entry.Source,
			entry.AISummary, entry.AIInsights, entry.AISentimentRating,
			entry.Sentiment, entry.SentimentScore, entry.Language, string(symbolsJSON), entry.BufferID)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert entry %s: %v", entry.ExternalID, err)
		}
		upserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %v", err)
	}
	committed = true

	log.Printf("UpsertSearchEntries: [THREAD-%d] Upserted %d entries", getGoroutineID(), upserted)
	return upserted, nil
}

// ConfirmSearchPresence returns the subset of externalIDs present in the
// search store. Presence is checked by external_id match only; content
// comparison is deliberately avoided.
func (s *SQLiteStorage) ConfirmSearchPresence(externalIDs []string) ([]string, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(externalIDs))
	args := make([]interface{}, len(externalIDs))
	for i, id := range externalIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := "SELECT external_id FROM search_entries WHERE external_id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm search presence: %v", err)
	}
	defer rows.Close()

	var present []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external ID: %v", err)
		}
		present = append(present, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	return present, nil
}

// DeleteBufferArticles removes buffer rows by id. Owned symbols and metrics
// cascade; the search store is never touched here.
func (s *SQLiteStorage) DeleteBufferArticles(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	result, err := s.db.Exec("DELETE FROM buffer_articles WHERE id IN ("+strings.Join(placeholders, ",")+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete buffer articles: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %v", err)
	}

	if rowsAffected > 0 {
		log.Printf("Cleared %d buffer articles after sync confirmation", rowsAffected)
	}

	return rowsAffected, nil
}

func (s *SQLiteStorage) GetSearchEntry(externalID string) (*models.SearchEntry, error) {
	row := s.db.QueryRow(`
		SELECT id, external_id, title, url, published_at, source, ai_summary, ai_insights, ai_sentiment_rating, sentiment, sentiment_score, language, symbols, created_at, updated_at, buffer_id
		FROM search_entries
		WHERE external_id = ?
	`, externalID)

	entry, err := scanSearchEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load search entry %s: %v", externalID, err)
	}

	return entry, nil
}

// QuerySearchEntries runs a filtered, ordered, paginated query against the
// search store and returns the page plus the total match count
func (s *SQLiteStorage) QuerySearchEntries(query *models.SearchQuery) ([]models.SearchEntry, int, error) {
	baseQuery := `
		SELECT id, external_id, title, url, published_at, source, ai_summary, ai_insights, ai_sentiment_rating, sentiment, sentiment_score, language, symbols, created_at, updated_at, buffer_id
		FROM search_entries
		WHERE 1=1
	`
	args := []interface{}{}

	countQuery := `
		SELECT COUNT(*)
		FROM search_entries
		WHERE 1=1
	`
	countArgs := []interface{}{}

	// Add search conditions
	if len(query.Search) > 0 {
		searchConditions := make([]string, len(query.Search))
		for i, term := range query.Search {
			searchConditions[i] = "(title LIKE ? OR ai_summary LIKE ? OR ai_insights LIKE ?)"
			args = append(args, "%"+term+"%", "%"+term+"%", "%"+term+"%")
			countArgs = append(countArgs, "%"+term+"%", "%"+term+"%", "%"+term+"%")
		}
		clause := " AND (" + strings.Join(searchConditions, " OR ") + ")"
		baseQuery += clause
		countQuery += clause
	}

	// Free-text filter fallback for unstructured filter expressions
	if query.Filter != "" {
		clause := " AND (title LIKE ? OR ai_summary LIKE ? OR ai_insights LIKE ?)"
		baseQuery += clause
		countQuery += clause
		args = append(args, "%"+query.Filter+"%", "%"+query.Filter+"%", "%"+query.Filter+"%")
		countArgs = append(countArgs, "%"+query.Filter+"%", "%"+query.Filter+"%", "%"+query.Filter+"%")
	}

	if query.Symbol != "" {
		// Symbols column holds a JSON array, so match the quoted form
		symbol := strings.ToUpper(strings.TrimSpace(query.Symbol))
		clause := " AND symbols LIKE ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, `%"`+symbol+`"%`)
		countArgs = append(countArgs, `%"`+symbol+`"%`)
	}

	if query.Source != "" {
		clause := " AND source = ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, query.Source)
		countArgs = append(countArgs, query.Source)
	}

	if query.Sentiment != "" {
		clause := " AND sentiment = ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, query.Sentiment)
		countArgs = append(countArgs, query.Sentiment)
	}

	if query.Language != "" {
		clause := " AND language = ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, query.Language)
		countArgs = append(countArgs, query.Language)
	}

	if query.DateFrom != nil {
		clause := " AND published_at >= ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, *query.DateFrom)
		countArgs = append(countArgs, *query.DateFrom)
	}

	if query.DateTo != nil {
		clause := " AND published_at <= ?"
		baseQuery += clause
		countQuery += clause
		args = append(args, *query.DateTo)
		countArgs = append(countArgs, *query.DateTo)
	}

	// Count total entries for pagination (before LIMIT/OFFSET)
	var totalCount int
	if err := s.db.QueryRow(countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count search entries: %v", err)
	}

	// Add ordering
	if query.OrderBy != "" {
		baseQuery += " ORDER BY " + s.parseOrderBy(query.OrderBy)
	} else {
		baseQuery += " ORDER BY published_at DESC"
	}

	// Add pagination - LIMIT must come before OFFSET in SQLite
	if query.Top > 0 {
		baseQuery += " LIMIT ?"
		args = append(args, query.Top)
		if query.Skip > 0 {
			baseQuery += " OFFSET ?"
			args = append(args, query.Skip)
		}
	} else if query.Skip > 0 {
		// If only skip is specified, we need a default limit
		baseQuery += " LIMIT -1 OFFSET ?"
		args = append(args, query.Skip)
	}

	rows, err := s.db.Query(baseQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query search entries: %v", err)
	}
	defer rows.Close()

	var entries []models.SearchEntry
	for rows.Next() {
		entry, err := scanSearchEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan search entry: %v", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error during rows iteration: %v", err)
	}

	return entries, totalCount, nil
}

func (s *SQLiteStorage) parseOrderBy(orderBy string) string {
	// Simple order by parsing - can be extended for more complex cases
	switch orderBy {
	case "title asc":
		return "title ASC"
	case "title desc":
		return "title DESC"
	case "source asc":
		return "source ASC"
	case "source desc":
		return "source DESC"
	case "published_at asc":
		return "published_at ASC"
	case "published_at desc":
		return "published_at DESC"
	case "created_at asc":
		return "created_at ASC"
	case "created_at desc":
		return "created_at DESC"
	case "ai_sentiment_rating asc":
		return "ai_sentiment_rating ASC"
	case "ai_sentiment_rating desc":
		return "ai_sentiment_rating DESC"
	default:
		return "published_at DESC"
	}
}

// ListSymbols returns every distinct symbol tagged on search entries
func (s *SQLiteStorage) ListSymbols() ([]string, error) {
	rows, err := s.db.Query("SELECT symbols FROM search_entries WHERE symbols IS NOT NULL AND symbols != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %v", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var symbols []string
	for rows.Next() {
		var symbolsJSON string
		if err := rows.Scan(&symbolsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan symbols: %v", err)
		}

		var list []string
		if err := json.Unmarshal([]byte(symbolsJSON), &list); err != nil {
			log.Printf("Warning: failed to parse symbols list: %v", err)
			continue
		}
		for _, symbol := range list {
			if !seen[symbol] {
				seen[symbol] = true
				symbols = append(symbols, symbol)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	sort.Strings(symbols)
	return symbols, nil
}

// TopSymbols returns the most frequently tagged symbols in the search store
func (s *SQLiteStorage) TopSymbols(limit int) ([]string, error) {
	rows, err := s.db.Query("SELECT symbols FROM search_entries WHERE symbols IS NOT NULL AND symbols != ''")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %v", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var symbolsJSON string
		if err := rows.Scan(&symbolsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan symbols: %v", err)
		}

		var list []string
		if err := json.Unmarshal([]byte(symbolsJSON), &list); err != nil {
			continue
		}
		for _, symbol := range list {
			counts[symbol]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	symbols := make([]string, 0, len(counts))
	for symbol := range counts {
		symbols = append(symbols, symbol)
	}
	sort.Slice(symbols, func(i, j int) bool {
		if counts[symbols[i]] != counts[symbols[j]] {
			return counts[symbols[i]] > counts[symbols[j]]
		}
		return symbols[i] < symbols[j]
	})

	if limit > 0 && len(symbols) > limit {
		symbols = symbols[:limit]
	}
	return symbols, nil
}

func (s *SQLiteStorage) GetBufferStats() (*models.BufferStats, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var stats models.BufferStats
	err := s.db.QueryRow("SELECT COUNT(*) FROM buffer_articles").Scan(&stats.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to count buffer articles: %v", err)
	}

	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM buffer_articles
		WHERE ai_summary IS NOT NULL AND ai_summary != ''
		  AND ai_insights IS NOT NULL AND ai_insights != ''
		  AND ai_sentiment_rating IS NOT NULL
	`).Scan(&stats.Enriched)
	if err != nil {
		return nil, fmt.Errorf("failed to count enriched articles: %v", err)
	}

	stats.Pending = stats.Total - stats.Enriched
	return &stats, nil
}

// CleanupOldArticles removes rows older than the retention period from both
// stores
func (s *SQLiteStorage) CleanupOldArticles(retention time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoffTime := time.Now().Add(-retention)

	result, err := s.db.Exec("DELETE FROM buffer_articles WHERE published_at < ?", cutoffTime)
	if err != nil {
		return fmt.Errorf("failed to delete old buffer articles: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected > 0 {
		log.Printf("Cleaned up %d old buffer articles (older than %v)", rowsAffected, retention)
	}

	result, err = s.db.Exec("DELETE FROM search_entries WHERE published_at < ?", cutoffTime)
	if err != nil {
		return fmt.Errorf("failed to delete old search entries: %v", err)
	}

	rowsAffected, err = result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %v", err)
	}
	if rowsAffected > 0 {
		log.Printf("Cleaned up %d old search entries (older than %v)", rowsAffected, retention)
	}

	return nil
}

// OptimizeDatabase performs database maintenance operations
func (s *SQLiteStorage) OptimizeDatabase() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// VACUUM to reclaim space and optimize storage
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %v", err)
	}

	// ANALYZE to update statistics for query optimization
	if _, err := s.db.Exec("ANALYZE"); err != nil {
		return fmt.Errorf("failed to analyze database: %v", err)
	}

	if _, err := s.db.Exec("ANALYZE buffer_articles"); err != nil {
		return fmt.Errorf("failed to analyze buffer_articles table: %v", err)
	}

	if _, err := s.db.Exec("ANALYZE search_entries"); err != nil {
		return fmt.Errorf("failed to analyze search_entries table: %v", err)
	}

	log.Printf("Database optimization completed")
	return nil
}

// GetDatabaseStats returns database statistics
func (s *SQLiteStorage) GetDatabaseStats() (map[string]interface{}, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stats := make(map[string]interface{})

	var bufferCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM buffer_articles").Scan(&bufferCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get buffer articles count: %v", err)
	}
	stats["buffer_articles"] = bufferCount

	var enrichedCount int
	err = s.db.QueryRow(`
		SELECT COUNT(*) FROM buffer_articles
		WHERE ai_summary IS NOT NULL AND ai_summary != ''
		  AND ai_insights IS NOT NULL AND ai_insights != ''
		  AND ai_sentiment_rating IS NOT NULL
	`).Scan(&enrichedCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get enriched articles count: %v", err)
	}
	stats["enriched_buffer_articles"] = enrichedCount

	var searchCount int
	err = s.db.QueryRow("SELECT COUNT(*) FROM search_entries").Scan(&searchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get search entries count: %v", err)
	}
	stats["search_entries"] = searchCount

	var symbolCount int
	err = s.db.QueryRow("SELECT COUNT(*) FROM article_symbols").Scan(&symbolCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get symbol count: %v", err)
	}
	stats["buffer_symbols"] = symbolCount

	var metricCount int
	err = s.db.QueryRow("SELECT COUNT(*) FROM article_metrics").Scan(&metricCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get metric count: %v", err)
	}
	stats["buffer_metrics"] = metricCount

	// Get average summary length (handle NULL values)
	var avgSummaryLength sql.NullFloat64
	err = s.db.QueryRow("SELECT AVG(LENGTH(ai_summary)) FROM search_entries").Scan(&avgSummaryLength)
	if err != nil {
		return nil, fmt.Errorf("failed to get average summary length: %v", err)
	}
	if avgSummaryLength.Valid {
		stats["avg_summary_length"] = avgSummaryLength.Float64
	} else {
		stats["avg_summary_length"] = 0.0
	}

	// Get database file size
	var dbSize int64
	err = s.db.QueryRow("SELECT page_count * page_size as size FROM pragma_page_count(), pragma_page_size()").Scan(&dbSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get database size: %v", err)
	}
	stats["database_size_bytes"] = dbSize

	// Get search entries by source
	rows, err := s.db.Query(`
		SELECT source, COUNT(*) as count
		FROM search_entries
		GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get entries by source: %v", err)
	}
	defer rows.Close()

	entriesBySource := make(map[string]int)
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %v", err)
		}
		entriesBySource[source] = count
	}
	stats["entries_by_source"] = entriesBySource

	return stats, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// detectLanguage detects the language of the given text using the lingua-go library
func (s *SQLiteStorage) detectLanguage(text string) string {
	if text == "" {
		return "en" // Default to English
	}

	language, exists := s.detector.DetectLanguageOf(text)
	if !exists {
		return "en" // Default to English if detection fails
	}

	switch language {
	case lingua.English:
		return "en"
	case lingua.German:
		return "de"
	case lingua.French:
		return "fr"
	case lingua.Spanish:
		return "es"
	case lingua.Chinese:
		return "zh"
	case lingua.Japanese:
		return "ja"
	case lingua.Russian:
		return "ru"
	case lingua.Portuguese:
		return "pt"
	default:
		return "en" // Default to English for unsupported languages
	}
}

// cleanAndOptimizeContent cleans and optimizes article content for storage
func cleanAndOptimizeContent(content string) string {
	if content == "" {
		return content
	}

	// Only remove excessive whitespace at the beginning and end
	content = strings.TrimSpace(content)

	// Remove excessive consecutive newlines (more than 3)
	content = regexp.MustCompile(`\n{4,}`).ReplaceAllString(content, "\n\n\n")

	// Remove excessive spaces (more than 2 consecutive spaces)
	content = regexp.MustCompile(` {3,}`).ReplaceAllString(content, "  ")

	return content
}
