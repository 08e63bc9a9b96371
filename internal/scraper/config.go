package scraper

import (
	"log/slog"

	"binday/internal/config"
)

// FromConfig builds the council scraper described by cfg, choosing the
// session source from cfg.SessionMode.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*CouncilScraper, error) {
	opts := CouncilOptions{
		UPRN:       cfg.UPRN,
		SessionURL: cfg.SessionURL,
		APIURL:     cfg.APIURL,
		Referer:    cfg.Referer,
		FormID:     cfg.FormID,
		Logger:     logger,
	}
	if cfg.SessionMode == config.SessionModeBrowser {
		opts.Session = &BrowserSession{
			PageURL:    cfg.Referer,
			SessionURL: cfg.SessionURL,
			CookieURLs: []string{cfg.APIURL},
			ChromePath: cfg.ChromePath,
		}
	}
	return NewCouncilScraper(opts)
}
