package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/enrich"
	"finfeed/internal/ingest"
	"finfeed/internal/models"
	"finfeed/internal/poller"
	"finfeed/internal/query"
	"finfeed/internal/security"
	"finfeed/internal/storage"
	"finfeed/internal/sync"
	"finfeed/internal/web"

	"github.com/gin-gonic/gin"
)

// Deps bundles the services the HTTP API exposes
type Deps struct {
	Query    *query.Service
	Ingester *ingest.Ingester
	Poller   *poller.Poller
	Syncer   *sync.Syncer
	Warmer   *sync.Warmer
	Enricher *enrich.Worker
	Storage  storage.Storage
}

type Server struct {
	router        *gin.Engine
	deps          Deps
	port          int
	swaggerServer *web.SwaggerServer
	httpServer    *http.Server
}

func NewServer(deps Deps, cfg *config.Config) *Server {
	router := gin.Default()

	// Setup security middleware
	securityConfig := &security.SecurityConfig{
		EnableRateLimit:       cfg.Security.EnableRateLimit,
		RateLimitPerSecond:    cfg.Security.RateLimitPerSecond,
		RateLimitBurst:        cfg.Security.RateLimitBurst,
		EnableCORS:            cfg.Security.EnableCORS,
		AllowedOrigins:        cfg.Security.AllowedOrigins,
		EnableSecurityHeaders: cfg.Security.EnableSecurityHeaders,
		MaxRequestSize:        cfg.Security.MaxRequestSize,
		EnableRequestID:       cfg.Security.EnableRequestID,
	}
	security.SetupSecurityMiddleware(router, securityConfig)

	server := &Server{
		router:        router,
		deps:          deps,
		port:          cfg.Port,
		swaggerServer: web.NewSwaggerServer(cfg.EnableSwagger),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/search", s.searchArticles)
		api.GET("/articles/:external_id", s.getArticle)
		api.GET("/symbols", s.getSymbols)
		api.POST("/ingest", s.ingestArticles)

		api.GET("/buffer/stats", s.getBufferStats)
		api.GET("/stats", s.getStats)

		// Sync control endpoints
		api.GET("/sync/status", s.getSyncStatus)
		api.POST("/sync/run", s.runSync)

		// Poller control endpoints
		api.GET("/poller/status", s.getPollerStatus)
		api.POST("/poller/poll/:source", s.forcePollSource)
	}

	// Register swagger UI
	s.swaggerServer.RegisterRoutes(s.router)
}

// Start runs the HTTP server until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(s.port),
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithContext runs the HTTP server until ctx is cancelled, then shuts
// it down gracefully. Returns ctx.Err() after a clean shutdown.
func (s *Server) StartWithContext(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    ":" + strconv.Itoa(s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %v", err)
	}
	return ctx.Err()
}

// Shutdown stops the HTTP server, letting in-flight requests finish
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// healthCheck godoc
// @Summary Health Check
// @Description Reports service liveness and background loop states
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"service":       "finfeed",
		"poller_active": s.deps.Poller.IsPolling(),
		"sync_running":  s.deps.Syncer.Status().Running,
	})
}

// searchArticles godoc
// @Summary Search Articles
// @Description Searches the enriched article store with optional filters and pagination
// @Tags Search
// @Produce json
// @Param $search query string false "Search terms (comma-separated, OR logic)"
// @Param $filter query string false "Filter expression (e.g. sentiment eq 'positive' and language eq 'en')"
// @Param $orderby query string false "Sort order (e.g. published_at desc)"
// @Param $top query int false "Maximum number of results"
// @Param $skip query int false "Number of results to skip"
// @Param $select query string false "Fields to include (comma-separated)"
// @Param q query string false "Shorthand for a single search term"
// @Param symbol query string false "Ticker symbol"
// @Param source query string false "Source name"
// @Param sentiment query string false "positive, negative or neutral"
// @Param language query string false "Two-letter language code"
// @Param from query string false "Published-after bound (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Published-before bound (RFC3339 or YYYY-MM-DD)"
// @Success 200 {object} models.SearchResult
// @Failure 400 {object} map[string]string
// @Router /api/v1/search [get]
func (s *Server) searchArticles(c *gin.Context) {
	searchQuery, err := parseSearchQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	result, err := s.deps.Query.Search(searchQuery)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// getArticle godoc
// @Summary Get Article
// @Description Looks up an article by external ID. Articles still waiting for enrichment are returned with pending set.
// @Tags Search
// @Produce json
// @Param external_id path string true "Article external ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/articles/{external_id} [get]
func (s *Server) getArticle(c *gin.Context) {
	externalID := c.Param("external_id")

	entry, pending, err := s.deps.Query.Lookup(externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "article not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"article": entry,
		"pending": pending,
	})
}

// getSymbols godoc
// @Summary List Symbols
// @Description Lists distinct ticker symbols across the search store
// @Tags Search
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/symbols [get]
func (s *Server) getSymbols(c *gin.Context) {
	symbols, err := s.deps.Query.ListSymbols()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// ingestArticles godoc
// @Summary Ingest Articles
// @Description Submits article candidates. Duplicates against either store are skipped and reported per item.
// @Tags Ingest
// @Accept json
// @Produce json
// @Param candidates body []models.Candidate true "Article candidates"
// @Success 200 {object} ingest.Stats
// @Failure 400 {object} map[string]string
// @Router /api/v1/ingest [post]
func (s *Server) ingestArticles(c *gin.Context) {
	var candidates []models.Candidate
	if err := c.ShouldBindJSON(&candidates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	if len(candidates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no candidates provided",
		})
		return
	}

	stats := s.deps.Ingester.Ingest(c.Request.Context(), candidates)
	c.JSON(http.StatusOK, stats)
}

// getBufferStats godoc
// @Summary Buffer Stats
// @Description Reports article counts in the buffer store
// @Tags Stats
// @Produce json
// @Success 200 {object} models.BufferStats
// @Router /api/v1/buffer/stats [get]
func (s *Server) getBufferStats(c *gin.Context) {
	stats, err := s.deps.Storage.GetBufferStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getStats godoc
// @Summary Service Stats
// @Description Reports database, cache and enrichment statistics
// @Tags Stats
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/stats [get]
func (s *Server) getStats(c *gin.Context) {
	dbStats, err := s.deps.Storage.GetDatabaseStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	response := gin.H{
		"database":     dbStats,
		"cached_items": s.deps.Query.CachedItems(),
	}
	if s.deps.Enricher != nil {
		response["enrichment"] = s.deps.Enricher.Status()
	}

	c.JSON(http.StatusOK, response)
}

// getSyncStatus godoc
// @Summary Sync Status
// @Description Reports sync loop and cache warmer state
// @Tags Sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync/status [get]
func (s *Server) getSyncStatus(c *gin.Context) {
	response := gin.H{
		"sync": s.deps.Syncer.Status(),
	}
	if s.deps.Warmer != nil {
		response["warmer"] = s.deps.Warmer.Status()
	}

	c.JSON(http.StatusOK, response)
}

// runSync godoc
// @Summary Run Sync Pass
// @Description Runs a buffer-to-search sync pass immediately and returns its stats
// @Tags Sync
// @Produce json
// @Success 200 {object} sync.Stats
// @Failure 500 {object} map[string]interface{}
// @Router /api/v1/sync/run [post]
func (s *Server) runSync(c *gin.Context) {
	stats, err := s.deps.Syncer.RunPass(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
			"stats": stats,
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// getPollerStatus godoc
// @Summary Poller Status
// @Description Reports per-source polling state
// @Tags Poller
// @Produce json
// @Success 200 {object} poller.Status
// @Router /api/v1/poller/status [get]
func (s *Server) getPollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Poller.Status())
}

// forcePollSource godoc
// @Summary Force Poll
// @Description Polls a single source immediately
// @Tags Poller
// @Produce json
// @Param source path string true "Source name"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/poller/poll/{source} [post]
func (s *Server) forcePollSource(c *gin.Context) {
	source := c.Param("source")

	if err := s.deps.Poller.ForcePoll(source); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Poll initiated successfully",
		"source":  source,
	})
}

// parseSearchQuery builds a search query from request parameters. The
// OData-style parameters and the plain shorthands can be mixed; shorthands
// lose against their $-prefixed counterparts.
func parseSearchQuery(c *gin.Context) (*models.SearchQuery, error) {
	searchQuery := &models.SearchQuery{
		Filter:    c.Query("$filter"),
		OrderBy:   c.Query("$orderby"),
		Select:    parseSelectFields(c.Query("$select")),
		Symbol:    strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Source:    strings.TrimSpace(c.Query("source")),
		Sentiment: strings.ToLower(strings.TrimSpace(c.Query("sentiment"))),
		Language:  strings.ToLower(strings.TrimSpace(c.Query("language"))),
	}

	// Parse search terms (comma-separated)
	if searchStr := c.Query("$search"); searchStr != "" {
		searchTerms := strings.Split(searchStr, ",")
		for i, term := range searchTerms {
			searchTerms[i] = strings.TrimSpace(term)
		}
		searchQuery.Search = searchTerms
	} else if q := strings.TrimSpace(c.Query("q")); q != "" {
		searchQuery.Search = []string{q}
	}

	if topStr := c.Query("$top"); topStr != "" {
		if top, err := strconv.Atoi(topStr); err == nil {
			searchQuery.Top = top
		}
	} else if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			searchQuery.Top = limit
		}
	}

	if skipStr := c.Query("$skip"); skipStr != "" {
		if skip, err := strconv.Atoi(skipStr); err == nil {
			searchQuery.Skip = skip
		}
	} else if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			searchQuery.Skip = offset
		}
	}

	if fromStr := c.Query("from"); fromStr != "" {
		from, err := parseTimeParam(fromStr)
		if err != nil {
			return nil, fmt.Errorf("invalid from parameter: %v", err)
		}
		searchQuery.DateFrom = &from
	}

	if toStr := c.Query("to"); toStr != "" {
		to, err := parseTimeParam(toStr)
		if err != nil {
			return nil, fmt.Errorf("invalid to parameter: %v", err)
		}
		searchQuery.DateTo = &to
	}

	return searchQuery, nil
}

// parseTimeParam accepts RFC3339 timestamps or plain dates
func parseTimeParam(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

// parseSelectFields parses the $select parameter and returns a slice of field names
func parseSelectFields(selectStr string) []string {
	if selectStr == "" {
		return nil
	}

	// Split by comma and trim whitespace
	fields := strings.Split(selectStr, ",")
	result := make([]string, 0, len(fields))

	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
