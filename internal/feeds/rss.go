package feeds

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"finfeed/internal/models"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent       = "finfeed/1.0 (RSS collector)"
	maxResponseSize = 10 * 1024 * 1024 // 10MB
)

// RSSSource polls a single RSS or Atom feed. Conditional request headers
// from the previous fetch are replayed so unchanged feeds cost a 304.
type RSSSource struct {
	name   string
	url    string
	parser *gofeed.Parser
	client *http.Client

	mu           sync.Mutex
	etag         string
	lastModified string
}

func NewRSSSource(name, url string) *RSSSource {
	return &RSSSource{
		name:   name,
		url:    url,
		parser: gofeed.NewParser(),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *RSSSource) Name() string {
	return s.name
}

func (s *RSSSource) Fetch(ctx context.Context, since time.Time) ([]models.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)

	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	if s.lastModified != "" {
		req.Header.Set("If-Modified-Since", s.lastModified)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		log.Printf("Feed %s not modified since last fetch", s.name)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, s.url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %v", err)
	}
	if int64(len(body)) > maxResponseSize {
		return nil, fmt.Errorf("feed response too large (exceeds %d bytes)", maxResponseSize)
	}

	s.mu.Lock()
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	s.mu.Unlock()

	feed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %v", err)
	}

	var candidates []models.Candidate
	for _, item := range feed.Items {
		publishedAt := time.Now().UTC()
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			publishedAt = item.UpdatedParsed.UTC()
		}

		if !since.IsZero() && publishedAt.Before(since) {
			continue
		}

		// Prefer full content, fall back to the description
		content := item.Content
		if content == "" {
			content = item.Description
		}

		candidates = append(candidates, models.Candidate{
			ExternalID:  s.externalID(item),
			Title:       strings.TrimSpace(item.Title),
			Content:     content,
			URL:         item.Link,
			PublishedAt: publishedAt,
			Source:      s.name,
		})
	}

	log.Printf("Fetched %d items from feed %s", len(candidates), s.name)
	return candidates, nil
}

// externalID derives a stable identifier from the item GUID, falling back
// to the link for feeds that omit one
func (s *RSSSource) externalID(item *gofeed.Item) string {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%s-%x", s.name, sum[:8])
}
