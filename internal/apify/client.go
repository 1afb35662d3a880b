// Package apify implements remote.Client against the Apify REST API (v2).
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/jobrelay/internal/remote"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxErrorBody   = 4096
)

// Endpoint labels reported to a RequestObserver.
const (
	EndpointRunActor = "run_actor"
	EndpointGetRun   = "get_run"
	EndpointDataset  = "get_dataset_items"
)

// RequestObserver receives the latency of every outbound API call.
type RequestObserver interface {
	APIRequest(endpoint string, seconds float64)
}

// Config holds the client settings. Zero values fall back to defaults.
type Config struct {
	BaseURL   string
	Token     string
	RateLimit float64 // requests per second; <= 0 disables limiting
	RateBurst int
	Timeout   time.Duration
}

// Client talks to the Apify API. Clients derived with WithToken share the
// rate limiter and HTTP transport of their parent.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   RequestObserver
}

var _ remote.Client = (*Client)(nil)

// New creates a Client from cfg.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// NewClientWithBaseURL creates an unthrottled client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	return New(Config{BaseURL: baseURL, Token: token})
}

// SetObserver registers an observer for outbound request latencies.
func (c *Client) SetObserver(o RequestObserver) {
	c.observer = o
}

// WithToken returns a client that authenticates with token instead of the
// configured one. An empty token returns c unchanged.
func (c *Client) WithToken(token string) *Client {
	if token == "" || token == c.token {
		return c
	}
	cp := *c
	cp.token = token
	return &cp
}

// HasToken reports whether the client has credentials configured.
func (c *Client) HasToken() bool {
	return c.token != ""
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type runData struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Submit starts a run of the actor. Actor ids of the form "user/name" are
// accepted and sent in the "user~name" form the API expects in paths.
// A 429 means no run was created and is retried; every other failure is
// returned at once.
func (c *Client) Submit(ctx context.Context, actorID string, payload map[string]any) (remote.RunHandle, error) {
	if actorID == "" {
		return remote.RunHandle{}, errors.New("actor id is empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return remote.RunHandle{}, fmt.Errorf("marshaling actor input: %w", err)
	}

	path := "/acts/" + url.PathEscape(ActorPathID(actorID)) + "/runs"
	raw, err := c.do(ctx, http.MethodPost, path, nil, body, EndpointRunActor)
	if err != nil {
		return remote.RunHandle{}, fmt.Errorf("starting actor %s: %w", actorID, err)
	}

	var resp envelope[runData]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return remote.RunHandle{}, fmt.Errorf("decoding run: %w", err)
	}
	if resp.Data.ID == "" || resp.Data.DefaultDatasetID == "" {
		return remote.RunHandle{}, errors.New("run response missing id or defaultDatasetId")
	}
	return remote.RunHandle{RunID: resp.Data.ID, ResultSetID: resp.Data.DefaultDatasetID}, nil
}

// PollStatus fetches the run and maps its status. READY and RUNNING are
// Running, SUCCEEDED is Succeeded, every other status is Failed.
func (c *Client) PollStatus(ctx context.Context, runID string) (remote.Status, error) {
	raw, err := c.do(ctx, http.MethodGet, "/actor-runs/"+url.PathEscape(runID), nil, nil, EndpointGetRun)
	if err != nil {
		return remote.StatusRunning, fmt.Errorf("getting run %s: %w", runID, err)
	}
	var resp envelope[runData]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return remote.StatusRunning, fmt.Errorf("decoding run: %w", err)
	}
	return MapStatus(resp.Data.Status), nil
}

// FetchResults downloads all items of a dataset unfiltered. Empty items and
// "#"-prefixed fields are kept; extraction decides what to drop.
func (c *Client) FetchResults(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	q := url.Values{"format": {"json"}}
	raw, err := c.do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(datasetID)+"/items", q, nil, EndpointDataset)
	if err != nil {
		return nil, fmt.Errorf("getting dataset %s: %w", datasetID, err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding dataset items: %w", err)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// MapStatus converts an Apify run status to a remote.Status.
func MapStatus(s string) remote.Status {
	switch s {
	case "READY", "RUNNING":
		return remote.StatusRunning
	case "SUCCEEDED":
		return remote.StatusSucceeded
	default:
		return remote.StatusFailed
	}
}

// ActorPathID converts "user/name" to the "user~name" path form.
func ActorPathID(actorID string) string {
	return strings.Replace(actorID, "/", "~", 1)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func isRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := range maxRetries {
		out, err := c.doOnce(ctx, method, path, query, body, endpoint)
		if err == nil {
			return out, nil
		}
		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body []byte, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observer != nil {
		c.observer.APIRequest(endpoint, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return out, nil
}
