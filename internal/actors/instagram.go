package actors

import (
	"errors"
	"fmt"
	"strings"
)

const maxInstagramUsername = 30

// InstagramConfig configures apify/instagram-scraper.
type InstagramConfig struct {
	Usernames          []string `json:"usernames" jsonschema_description:"Instagram usernames to scrape"`
	MaxPosts           uint32   `json:"maxPosts" jsonschema:"default=50" jsonschema_description:"Maximum posts per profile"`
	IncludeProfileInfo bool     `json:"includeProfileInfo" jsonschema:"default=false" jsonschema_description:"Include profile information"`
	IncludeComments    bool     `json:"includeComments" jsonschema:"default=false" jsonschema_description:"Include comments on posts"`
}

func init() {
	register(entry{
		actorType:   "instagram",
		actorName:   "apify/instagram-scraper",
		title:       "InstagramScraperConfig",
		description: "Scrapes Instagram profiles and posts.",
		newConfig:   func() Preset { return &InstagramConfig{MaxPosts: 50} },
	})
}

func (*InstagramConfig) ActorType() string { return "instagram" }
func (*InstagramConfig) ActorName() string { return "apify/instagram-scraper" }
func (*InstagramConfig) preset()           {}

func (c *InstagramConfig) Validate() error {
	if len(c.Usernames) == 0 {
		return errors.New("usernames cannot be empty")
	}
	for _, u := range c.Usernames {
		if strings.TrimSpace(u) == "" {
			return errors.New("username cannot be empty")
		}
		if strings.Contains(u, " ") || len(u) > maxInstagramUsername {
			return fmt.Errorf("invalid Instagram username: %s", u)
		}
	}
	if c.MaxPosts == 0 {
		return errors.New("max_posts must be greater than 0")
	}
	return nil
}

func (c *InstagramConfig) Body() (map[string]any, error) {
	return structBody(c)
}
