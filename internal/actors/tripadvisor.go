package actors

import (
	"errors"
	"fmt"
	"strings"
)

// TripAdvisorConfig configures the TripAdvisor reviews scraper. The actor
// takes a startUrls list, so Body reshapes the single URL.
type TripAdvisorConfig struct {
	URL                 string   `json:"url" jsonschema_description:"TripAdvisor URL to scrape reviews from"`
	ReviewRatings       []string `json:"reviewRatings" jsonschema_description:"Filter reviews by rating (ALL_REVIEW_RATINGS or values like 5 and 4)"`
	ReviewsLanguages    []string `json:"reviewsLanguages" jsonschema_description:"Filter reviews by language (ALL_REVIEW_LANGUAGES or codes like en and fr)"`
	MaxReviews          uint32   `json:"maxReviews" jsonschema:"default=0" jsonschema_description:"Maximum number of reviews to scrape (0 = unlimited)"`
	IncludeReviewerInfo bool     `json:"includeReviewerInfo" jsonschema:"default=false" jsonschema_description:"Include reviewer details"`
}

func init() {
	register(entry{
		actorType:   "tripadvisor",
		actorName:   "Hvp4YfFGyLM635Q2F",
		title:       "TripAdvisorConfig",
		description: "Scrapes reviews from TripAdvisor attraction, restaurant, or hotel pages.",
		newConfig: func() Preset {
			return &TripAdvisorConfig{
				ReviewRatings:    []string{"ALL_REVIEW_RATINGS"},
				ReviewsLanguages: []string{"ALL_REVIEW_LANGUAGES"},
			}
		},
	})
}

func (*TripAdvisorConfig) ActorType() string { return "tripadvisor" }
func (*TripAdvisorConfig) ActorName() string { return "Hvp4YfFGyLM635Q2F" }
func (*TripAdvisorConfig) preset()           {}

func (c *TripAdvisorConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url cannot be empty")
	}
	if !strings.Contains(c.URL, "tripadvisor") {
		return fmt.Errorf("URL does not appear to be a TripAdvisor URL: %s", c.URL)
	}
	return nil
}

func (c *TripAdvisorConfig) Body() (map[string]any, error) {
	ratings := make([]any, len(c.ReviewRatings))
	for i, r := range c.ReviewRatings {
		ratings[i] = r
	}
	langs := make([]any, len(c.ReviewsLanguages))
	for i, l := range c.ReviewsLanguages {
		langs[i] = l
	}

	body := map[string]any{
		"startUrls":        []any{map[string]any{"url": c.URL, "method": "GET"}},
		"reviewRatings":    ratings,
		"reviewsLanguages": langs,
	}
	if c.MaxReviews > 0 {
		body["maxReviews"] = c.MaxReviews
	}
	if c.IncludeReviewerInfo {
		body["includeReviewerInfo"] = true
	}
	return body, nil
}
