package actors

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestList(t *testing.T) {
	list := List()
	want := []string{"google_search", "instagram", "tripadvisor", "web_scraper"}
	if len(list) != len(want) {
		t.Fatalf("got %d presets, want %d", len(list), len(want))
	}
	for i, m := range list {
		if m.ActorType != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, m.ActorType, want[i])
		}
		if m.Schema == nil {
			t.Errorf("%s has no schema", m.ActorType)
		}
	}
}

func TestLookup_Schema(t *testing.T) {
	m, ok := Lookup("web_scraper")
	if !ok {
		t.Fatal("web_scraper not found")
	}
	if m.ActorName != "apify/web-scraper" {
		t.Errorf("ActorName = %s", m.ActorName)
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var doc struct {
		Schema struct {
			Title       string                     `json:"title"`
			Description string                     `json:"description"`
			Properties  map[string]json.RawMessage `json:"properties"`
		} `json:"schema"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.Schema.Title != "WebScraperConfig" {
		t.Errorf("title = %q", doc.Schema.Title)
	}
	if !strings.Contains(doc.Schema.Description, "Scrapes web pages") {
		t.Errorf("description = %q", doc.Schema.Description)
	}
	for _, p := range []string{"startUrls", "maxPages", "contentSelector", "useApifyProxy"} {
		if _, ok := doc.Schema.Properties[p]; !ok {
			t.Errorf("schema missing property %s", p)
		}
	}

	if _, ok := Lookup("facebook"); ok {
		t.Error("Lookup(facebook) should fail")
	}
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse("google_search", json.RawMessage(`{"queries":["golang"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	g := p.(*GoogleSearchConfig)
	if g.MaxResults != 10 || g.Language != "en" || g.CountryCode != nil {
		t.Errorf("defaults not applied: %+v", g)
	}
	if p.ActorName() != "apify/google-search-scraper" {
		t.Errorf("ActorName = %s", p.ActorName())
	}

	p, err = Parse("web_scraper", json.RawMessage(`{"startUrls":["https://example.com"]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	body, err := p.Body()
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	if body["maxPages"] != float64(100) || body["useApifyProxy"] != false {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["contentSelector"]; ok {
		t.Error("unset contentSelector should be omitted")
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		actorType string
		config    string
		wantMsg   string
	}{
		{"web_scraper", `{"startUrls":[]}`, "start_urls cannot be empty"},
		{"web_scraper", `{"startUrls":["ftp://x"]}`, "invalid URL: ftp://x"},
		{"web_scraper", `{"startUrls":["https://x"],"maxPages":0}`, "max_pages must be greater than 0"},
		{"google_search", `{"queries":[]}`, "queries cannot be empty"},
		{"google_search", `{"queries":["  "]}`, "query cannot be empty"},
		{"google_search", `{"queries":["q"],"maxResults":101}`, "max_results must be between 1 and 100"},
		{"google_search", `{"queries":["q"],"countryCode":"usa"}`, "country_code must be 2 characters"},
		{"instagram", `{"usernames":[]}`, "usernames cannot be empty"},
		{"instagram", `{"usernames":["a b"]}`, "invalid Instagram username: a b"},
		{"instagram", `{"usernames":["` + strings.Repeat("x", 31) + `"]}`, "invalid Instagram username"},
		{"instagram", `{"usernames":["nasa"],"maxPosts":0}`, "max_posts must be greater than 0"},
		{"tripadvisor", `{"url":""}`, "url cannot be empty"},
		{"tripadvisor", `{"url":"https://yelp.com/x"}`, "does not appear to be a TripAdvisor URL"},
		{"tripadvisor", `{"url":42}`, "cannot unmarshal"},
		{"tripadvisor", `null`, "config is required"},
	}
	for _, tt := range tests {
		t.Run(tt.actorType+"/"+tt.wantMsg, func(t *testing.T) {
			_, err := Parse(tt.actorType, json.RawMessage(tt.config))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestParse_UnknownActor(t *testing.T) {
	_, err := Parse("facebook", json.RawMessage(`{}`))
	if !errors.Is(err, ErrUnknownActor) {
		t.Fatalf("err = %v, want ErrUnknownActor", err)
	}
	if Known("facebook") || !Known("instagram") {
		t.Error("Known reported wrong membership")
	}
}

func TestTripAdvisorBody(t *testing.T) {
	p, err := Parse("tripadvisor", json.RawMessage(`{"url":"https://www.tripadvisor.com/Attraction_Review-g1","maxReviews":20}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	body, err := p.Body()
	if err != nil {
		t.Fatalf("Body: %v", err)
	}
	b, _ := json.Marshal(body)
	want := `{"maxReviews":20,"reviewRatings":["ALL_REVIEW_RATINGS"],"reviewsLanguages":["ALL_REVIEW_LANGUAGES"],"startUrls":[{"method":"GET","url":"https://www.tripadvisor.com/Attraction_Review-g1"}]}`
	if string(b) != want {
		t.Errorf("body = %s\nwant   %s", b, want)
	}
	if _, ok := body["url"]; ok {
		t.Error("single url should not be sent")
	}
}
