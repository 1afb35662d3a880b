package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/jobrelay/internal/job"
	"github.com/kalambet/jobrelay/internal/metrics"
	"github.com/kalambet/jobrelay/internal/remote"
	"github.com/kalambet/jobrelay/internal/storage"
)

const testToken = "test-token-12345"

var fixedStart = time.Date(2025, 3, 15, 8, 0, 0, 0, time.UTC)

// fakeRemote is a scripted remote.Client. Polls report Running until
// runningPolls have been answered, then finalStatus.
type fakeRemote struct {
	mu           sync.Mutex
	runningPolls int
	finalStatus  remote.Status
	submitErr    error
	records      []json.RawMessage

	polls    int
	targets  []string
	payloads []map[string]any
}

func newFakeRemote(records ...string) *fakeRemote {
	f := &fakeRemote{finalStatus: remote.StatusSucceeded}
	for _, r := range records {
		f.records = append(f.records, json.RawMessage(r))
	}
	return f
}

func (f *fakeRemote) Submit(_ context.Context, target string, payload map[string]any) (remote.RunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, target)
	f.payloads = append(f.payloads, payload)
	if f.submitErr != nil {
		return remote.RunHandle{}, f.submitErr
	}
	return remote.RunHandle{RunID: "run-1", ResultSetID: "ds-1"}, nil
}

func (f *fakeRemote) PollStatus(context.Context, string) (remote.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.polls <= f.runningPolls {
		return remote.StatusRunning, nil
	}
	return f.finalStatus, nil
}

func (f *fakeRemote) FetchResults(context.Context, string) ([]json.RawMessage, error) {
	return f.records, nil
}

func (f *fakeRemote) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.targets)
}

// fakeSource hands out f for any token. When defaultToken is false an empty
// request token is rejected like an unconfigured server.
func fakeSource(f *fakeRemote, defaultToken bool) ClientSource {
	return func(token string) (remote.Client, error) {
		if token == "" && !defaultToken {
			return nil, ErrMissingToken
		}
		return f, nil
	}
}

type testEnv struct {
	handler http.Handler
	store   *storage.Store
	remote  *fakeRemote
	runner  *Runner
	metrics *metrics.Metrics
}

type envOptions struct {
	token        string
	noDefaultKey bool
	maxAttempts  int
}

func setupEnv(t *testing.T, f *fakeRemote, o envOptions) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	opts := []job.Option{
		job.WithPollInterval(0),
		job.WithClock(func() time.Time { return fixedStart }),
	}
	if o.maxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(o.maxAttempts))
	}
	runner := NewRunner(RunnerConfig{
		Clients:    fakeSource(f, !o.noDefaultKey),
		History:    store,
		Observer:   m,
		JobOptions: opts,
	})
	h := NewHandler(Deps{
		Runner:  runner,
		Store:   store,
		Metrics: m,
		Token:   o.token,
	})
	return &testEnv{handler: h, store: store, remote: f, runner: runner, metrics: m}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, ""))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Message, body.Error.Type
}

const reviewRecord = `{"text":"Great place","publishedDate":"2025-03-07","reviewId":"997053569","lang":"fr"}`

const tripadvisorJob = `{
	"settings": {
		"actor_config": {"url": "https://www.tripadvisor.com/Attraction_Review-g1-d2"},
		"key_mapping": [
			{"from": "text", "to": "content", "kind": "String"},
			{"from": "publishedDate", "to": "date", "kind": {"Date": {"format": "%Y-%m-%d"}}},
			{"from": "reviewId", "to": "id", "kind": "String"}
		],
		"state_mapping": [
			{"from": "since", "to": "startDate", "update": "$format_date(start_date, \"%Y-%m-%d\")"}
		]
	},
	"state": "{\"since\":\"2025-01-01\"}"
}`

const arbitraryJob = `{
	"settings": {
		"actor_id": "someone/custom-actor",
		"actor_input": {"query": "coffee"},
		"key_mapping": [
			{"from": "text", "to": "content"},
			{"from": "publishedDate", "to": "date", "kind": {"Date": {"format": "%Y-%m-%d"}}}
		],
		"state_mapping": [
			{"from": "cursor", "to": "after", "update": "page-2"}
		]
	},
	"state": "{\"cursor\":\"abc\"}"
}`
