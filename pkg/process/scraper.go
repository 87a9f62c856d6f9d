package process

import (
	"net/url"

	"sitemirror/pkg/models"
	"sitemirror/pkg/parse"
)

// Scraper extracts references to the target host from HTML and CSS documents and
// rewrites them to host-relative object paths, so the stored copy works when
// served from the mirror.
type Scraper struct {
	target *url.URL
}

// NewScraper creates a Scraper for the given origin
func NewScraper(target *url.URL) *Scraper {
	return &Scraper{target: target}
}

// Scrape dispatches on content type. Anything other than HTML or CSS is returned as is.
func (s *Scraper) Scrape(contentType, body, currentPath string) models.RewriteResult {
	switch {
	case models.IsHTML(contentType):
		return s.ScrapeHTML(body, currentPath)
	case models.IsCSS(contentType):
		return s.ScrapeCSS(body, currentPath)
	default:
		return models.RewriteResult{Body: body}
	}
}

// rewrite resolves one reference. It returns the discovered path, the replacement
// text and whether ref belongs to the target host at all.
func (s *Scraper) rewrite(currentPath, ref string) (discovered, replacement string, ok bool) {
	resolved, ok := parse.Resolve(s.target, currentPath, ref)
	if !ok {
		return "", "", false
	}
	return resolved, parse.ObjectPath(resolved), true
}
