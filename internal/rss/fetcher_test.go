package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/feedsync/internal/model"
)

const fixtureRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Fixture</title>
  <link>http://example.com/</link>
  <description>fixture feed</description>
  <item>
    <guid>item-1</guid>
    <title>First</title>
    <link>http://example.com/1</link>
    <description>&lt;p&gt;hello&lt;/p&gt;&lt;script&gt;alert(1)&lt;/script&gt;</description>
    <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  </item>
  <item>
    <title>No id</title>
    <description>orphan</description>
  </item>
</channel>
</rss>`

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retries = 0
	opts.HostDelay = 0
	opts.Timeout = 5 * time.Second
	return opts
}

func TestFetchOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "feedsync/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write([]byte(fixtureRSS))
	}))
	defer srv.Close()

	res, err := NewFetcher(testOptions()).Fetch(context.Background(), srv.URL, model.Validators{})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, http.StatusOK, res.Code)
	require.NotNil(t, res.Validators.ETag)
	assert.Equal(t, `"v1"`, *res.Validators.ETag)
	require.NotNil(t, res.Validators.Modified)

	require.Len(t, res.Entries, 2)
	first := res.Entries[0]
	require.NotNil(t, first.ID)
	assert.Equal(t, "item-1", *first.ID)
	require.NotNil(t, first.Title)
	assert.Equal(t, "First", *first.Title)
	require.NotNil(t, first.Created)
	assert.Equal(t, 2006, first.Created.Year())
	require.NotNil(t, first.Summary)
	assert.Contains(t, *first.Summary, "<script>")

	assert.Nil(t, res.Entries[1].ID)
	assert.Nil(t, res.Entries[1].Link)
}

func TestFetchSanitize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtureRSS))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Sanitize = true
	res, err := NewFetcher(opts).Fetch(context.Background(), srv.URL, model.Validators{})
	require.NoError(t, err)
	require.NotNil(t, res.Entries[0].Summary)
	assert.NotContains(t, *res.Entries[0].Summary, "<script>")
	assert.Contains(t, *res.Entries[0].Summary, "hello")
}

func TestFetchConditional(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(fixtureRSS))
	}))
	defer srv.Close()

	etag := `"v1"`
	res, err := NewFetcher(testOptions()).Fetch(context.Background(), srv.URL, model.Validators{ETag: &etag})
	require.NoError(t, err)
	assert.Equal(t, StatusNotModified, res.Status)
	assert.Empty(t, res.Entries)
}

func TestFetchStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status Status
	}{
		{name: "gone", code: http.StatusGone, status: StatusGone},
		{name: "not found", code: http.StatusNotFound, status: StatusError},
		{name: "server error", code: http.StatusInternalServerError, status: StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			res, err := NewFetcher(testOptions()).Fetch(context.Background(), srv.URL, model.Validators{})
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.Code)
			assert.Nil(t, res.Validators.ETag)
		})
	}
}

func TestFetchRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtureRSS))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := NewFetcher(testOptions()).Fetch(context.Background(), srv.URL+"/old", model.Validators{})
	require.NoError(t, err)
	assert.Equal(t, StatusRedirect, res.Status)
	assert.Equal(t, srv.URL+"/new", res.Location)
	assert.Len(t, res.Entries, 2)
}

func TestFetchParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"broken"`)
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	res, err := NewFetcher(testOptions()).Fetch(context.Background(), srv.URL, model.Validators{})
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, http.StatusOK, res.Code)
	require.NotNil(t, res.Validators.ETag)
	assert.Equal(t, `"broken"`, *res.Validators.ETag)
	assert.Empty(t, res.Entries)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	opts := testOptions()
	opts.Retries = 1
	_, err := NewFetcher(opts).Fetch(context.Background(), url, model.Validators{})
	assert.Error(t, err)
}

func TestDomainLimiterSpacing(t *testing.T) {
	dl := newDomainLimiter(50 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, dl.acquire(ctx, "example.com"))
	dl.release("example.com")

	start := time.Now()
	require.NoError(t, dl.acquire(ctx, "example.com"))
	dl.release("example.com")
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	start = time.Now()
	require.NoError(t, dl.acquire(ctx, "other.org"))
	dl.release("other.org")
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.com", extractDomain("https://example.com/feed.xml"))
	assert.Equal(t, "example.com:8080", extractDomain("http://example.com:8080/rss"))
}
