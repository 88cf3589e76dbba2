package feeds

import (
	"context"
	"time"

	"finfeed/internal/config"
	"finfeed/internal/models"
)

// Source is a provider of article candidates. Fetch returns items published
// at or after since; implementations may return fewer when the upstream
// supports conditional requests.
type Source interface {
	Name() string
	Fetch(ctx context.Context, since time.Time) ([]models.Candidate, error)
}

// FromConfig builds the configured sources: one RSS source per feed plus
// the Alpaca news source when credentials are present.
func FromConfig(cfg *config.Config) []Source {
	var sources []Source

	for name, url := range cfg.RSSFeeds {
		sources = append(sources, NewRSSSource(name, url))
	}

	if cfg.AlpacaEnabled() {
		sources = append(sources, NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.Symbols))
	}

	return sources
}
