package actors

import (
	"errors"
	"strings"
)

// GoogleSearchConfig configures apify/google-search-scraper.
type GoogleSearchConfig struct {
	Queries     []string `json:"queries" jsonschema_description:"Search queries to execute"`
	MaxResults  uint32   `json:"maxResults" jsonschema:"default=10,minimum=1,maximum=100" jsonschema_description:"Maximum results per query (1-100)"`
	Language    string   `json:"language" jsonschema:"default=en" jsonschema_description:"Language code (e.g. en or fr)"`
	CountryCode *string  `json:"countryCode,omitempty" jsonschema:"minLength=2,maxLength=2" jsonschema_description:"Country code for localized results (e.g. us or uk)"`
}

func init() {
	register(entry{
		actorType:   "google_search",
		actorName:   "apify/google-search-scraper",
		title:       "GoogleSearchConfig",
		description: "Scrapes Google search results for given queries.",
		newConfig:   func() Preset { return &GoogleSearchConfig{MaxResults: 10, Language: "en"} },
	})
}

func (*GoogleSearchConfig) ActorType() string { return "google_search" }
func (*GoogleSearchConfig) ActorName() string { return "apify/google-search-scraper" }
func (*GoogleSearchConfig) preset()           {}

func (c *GoogleSearchConfig) Validate() error {
	if len(c.Queries) == 0 {
		return errors.New("queries cannot be empty")
	}
	for _, q := range c.Queries {
		if strings.TrimSpace(q) == "" {
			return errors.New("query cannot be empty")
		}
	}
	if c.MaxResults == 0 || c.MaxResults > 100 {
		return errors.New("max_results must be between 1 and 100")
	}
	if c.CountryCode != nil && len(*c.CountryCode) != 2 {
		return errors.New("country_code must be 2 characters")
	}
	return nil
}

func (c *GoogleSearchConfig) Body() (map[string]any, error) {
	return structBody(c)
}
