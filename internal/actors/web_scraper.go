package actors

import (
	"errors"
	"fmt"
	"strings"
)

// WebScraperConfig configures apify/web-scraper.
type WebScraperConfig struct {
	StartURLs       []string `json:"startUrls" jsonschema_description:"URLs to start scraping from"`
	MaxPages        uint32   `json:"maxPages" jsonschema:"default=100" jsonschema_description:"Maximum pages to crawl"`
	ContentSelector *string  `json:"contentSelector,omitempty" jsonschema_description:"CSS selector for content extraction"`
	UseApifyProxy   bool     `json:"useApifyProxy" jsonschema:"default=false" jsonschema_description:"Whether to use Apify proxy"`
}

func init() {
	register(entry{
		actorType:   "web_scraper",
		actorName:   "apify/web-scraper",
		title:       "WebScraperConfig",
		description: "Scrapes web pages starting from given URLs.",
		newConfig:   func() Preset { return &WebScraperConfig{MaxPages: 100} },
	})
}

func (*WebScraperConfig) ActorType() string { return "web_scraper" }
func (*WebScraperConfig) ActorName() string { return "apify/web-scraper" }
func (*WebScraperConfig) preset()           {}

func (c *WebScraperConfig) Validate() error {
	if len(c.StartURLs) == 0 {
		return errors.New("start_urls cannot be empty")
	}
	for _, u := range c.StartURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("invalid URL: %s", u)
		}
	}
	if c.MaxPages == 0 {
		return errors.New("max_pages must be greater than 0")
	}
	return nil
}

func (c *WebScraperConfig) Body() (map[string]any, error) {
	return structBody(c)
}
