package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/refresh"
	"github.com/bryan-buckman/feedsync/internal/rss"
)

const fixtureRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Fixture</title>
  <link>http://example.com/</link>
  <description>fixture feed</description>
  <item>
    <guid>http://example.com/items/1</guid>
    <title>First</title>
    <link>http://example.com/1</link>
    <description>hello</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>No id</title>
    <description>orphan</description>
  </item>
</channel>
</rss>`

type testEnv struct {
	store *database.DB
	api   *httptest.Server
	feed  *httptest.Server
}

func newTestEnv(t *testing.T, runner refresh.Runner) *testEnv {
	t.Helper()
	store, err := database.New(filepath.Join(t.TempDir(), "feedsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, fixtureRSS)
	}))
	t.Cleanup(feed.Close)

	reg := prometheus.NewRegistry()
	metrics := refresh.NewMetrics(reg)
	if runner == nil {
		opts := rss.DefaultOptions()
		opts.Retries = 0
		opts.HostDelay = 0
		runner = refresh.NewEngine(store, rss.NewFetcher(opts), metrics)
	}
	srv := New(store, refresh.NewRefresher(&refresh.Gate{}, runner, metrics), nil, reg)
	api := httptest.NewServer(srv)
	t.Cleanup(api.Close)

	return &testEnv{store: store, api: api, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.api.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

type feedView struct {
	ID     int64    `json:"id"`
	Source string   `json:"source"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
}

func TestStatusCodes(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "missing feed", method: http.MethodGet, path: "/feed/999", status: http.StatusNotFound},
		{name: "bad feed id", method: http.MethodGet, path: "/feed/abc", status: http.StatusNotFound},
		{name: "empty tag", method: http.MethodPost, path: "/tag", body: `{}`, status: http.StatusBadRequest},
		{name: "update missing feed", method: http.MethodPut, path: "/feed/999", body: `{}`, status: http.StatusNotFound},
		{name: "delete missing feed", method: http.MethodDelete, path: "/feed/999", status: http.StatusNotFound},
		{name: "create content", method: http.MethodPost, path: "/content", body: `{}`, status: http.StatusMethodNotAllowed},
		{name: "delete content", method: http.MethodDelete, path: "/content/x", status: http.StatusMethodNotAllowed},
		{name: "missing content", method: http.MethodGet, path: "/content/x", status: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
		{name: "empty tag list", method: http.MethodGet, path: "/tag", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			if status >= http.StatusBadRequest {
				assert.NotEmpty(t, decode[errorBody](t, body).Error)
			}
		})
	}
}

func TestTagLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/tag", `{"name":"news"}`)
	require.Equal(t, http.StatusOK, status, string(body))
	created := decode[map[string]any](t, body)
	assert.Equal(t, "news", created["name"])
	assert.EqualValues(t, 1, created["id"])

	status, _ = env.do(t, http.MethodPost, "/tag", `{"name":"news"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPut, "/tag/1", `{"name":"world"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "world", decode[map[string]any](t, body)["name"])

	status, body = env.do(t, http.MethodDelete, "/tag/1", "")
	require.Equal(t, http.StatusOK, status)
	snapshot := decode[map[string]any](t, body)
	assert.Equal(t, "world", snapshot["name"])
	assert.EqualValues(t, 1, snapshot["id"])

	status, _ = env.do(t, http.MethodGet, "/tag/1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFeedTagsOmittedVersusEmpty(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/feed", `{"source":"http://a/rss","name":"a","tags":["b","a"]}`)
	require.Equal(t, http.StatusOK, status, string(body))
	feed := decode[feedView](t, body)
	assert.Equal(t, []string{"a", "b"}, feed.Tags)

	status, body = env.do(t, http.MethodPut, "/feed/1", `{"source":"http://a/rss","name":"a2"}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, []string{"a", "b"}, decode[feedView](t, body).Tags)

	status, body = env.do(t, http.MethodPut, "/feed/1", `{"source":"http://a/rss","name":"a2","tags":[]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{}, decode[feedView](t, body).Tags)

	// Tags survive being unlinked.
	status, body = env.do(t, http.MethodGet, "/tag", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 2)
}

func TestEndToEndRefresh(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/feed",
		`{"source":"`+env.feed.URL+`","name":"fixture","tags":["x"]}`)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.do(t, http.MethodGet, "/feed/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "fixture", decode[feedView](t, body).Name)

	status, body = env.do(t, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, status, string(body))
	sum := decode[refresh.Summary](t, body)
	assert.Equal(t, 1, sum.FeedsUpdated)
	assert.Equal(t, 1, sum.NewItems)

	status, body = env.do(t, http.MethodPost, "/refresh", "")
	require.Equal(t, http.StatusOK, status)
	sum = decode[refresh.Summary](t, body)
	assert.Equal(t, 1, sum.FeedsUpdated)
	assert.Equal(t, 0, sum.NewItems)

	status, body = env.do(t, http.MethodGet, "/content", "")
	require.Equal(t, http.StatusOK, status)
	contents := decode[[]map[string]any](t, body)
	require.Len(t, contents, 1)
	assert.Equal(t, "http://example.com/items/1", contents[0]["id"])
	assert.Equal(t, "fixture", contents[0]["feed"])
	assert.Equal(t, "hello", contents[0]["text"])
	assert.Equal(t, false, contents[0]["read"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`, contents[0]["created_date"])

	status, body = env.do(t, http.MethodGet, "/content/http://example.com/items/1", "")
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "First", decode[map[string]any](t, body)["title"])

	// A feed that owns ingested entries cannot be deleted; nothing is lost.
	status, body = env.do(t, http.MethodDelete, "/feed/1", "")
	require.Equal(t, http.StatusConflict, status, string(body))
	assert.NotEmpty(t, decode[errorBody](t, body).Error)
	status, _ = env.do(t, http.MethodGet, "/feed/1", "")
	assert.Equal(t, http.StatusOK, status)
	status, body = env.do(t, http.MethodGet, "/content", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, body), 1)
}

func TestDeleteFeedWithoutContents(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/feed", `{"source":"http://a/rss","name":"a","tags":["x"]}`)
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = env.do(t, http.MethodDelete, "/feed/1", "")
	require.Equal(t, http.StatusOK, status, string(body))
	snapshot := decode[feedView](t, body)
	assert.Equal(t, feedView{ID: 1, Source: "http://a/rss", Name: "a", Tags: []string{"x"}}, snapshot)

	status, _ = env.do(t, http.MethodGet, "/feed/1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

type blockingRunner struct {
	started chan struct{}
	finish  chan struct{}
}

func (b *blockingRunner) Run(context.Context) (refresh.Summary, error) {
	close(b.started)
	<-b.finish
	return refresh.Summary{}, nil
}

func TestRefreshBusy(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), finish: make(chan struct{})}
	env := newTestEnv(t, runner)

	done := make(chan int)
	go func() {
		resp, err := http.Post(env.api.URL+"/refresh", "application/json", nil)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-runner.started

	status, body := env.do(t, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, decode[map[string]string](t, body)["message"], "in progress")

	close(runner.finish)
	assert.Equal(t, http.StatusOK, <-done)
}

type failingRunner struct{}

func (failingRunner) Run(context.Context) (refresh.Summary, error) {
	return refresh.Summary{}, errors.New("database exploded")
}

func TestRefreshFailure(t *testing.T) {
	env := newTestEnv(t, failingRunner{})
	status, body := env.do(t, http.MethodPost, "/refresh", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	msg := decode[errorBody](t, body).Error
	assert.NotEmpty(t, msg)
	assert.NotContains(t, msg, "exploded")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","database":"SQLite"}`, string(body))

	env.do(t, http.MethodPost, "/refresh", "")
	status, body = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "feedsync_refresh_runs_total")
}

func TestOPMLRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	doc := `<?xml version="1.0"?><opml version="2.0"><body>
<outline text="Tech"><outline text="Go" type="rss" xmlUrl="http://go.example/rss"/></outline>
</body></opml>`
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("opml", "subs.opml")
	require.NoError(t, err)
	_, _ = io.WriteString(fw, doc)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.api.URL+"/opml", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.EqualValues(t, 1, decode[map[string]any](t, body)["imported"])

	status, body := env.do(t, http.MethodGet, "/feed/1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"Tech"}, decode[feedView](t, body).Tags)

	status, body = env.do(t, http.MethodGet, "/opml", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `xmlUrl="http://go.example/rss"`)

	status, _ = env.do(t, http.MethodPost, "/opml", "")
	assert.Equal(t, http.StatusBadRequest, status)
}
