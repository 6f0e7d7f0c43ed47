// Package rss provides conditional feed fetching and parsing.
package rss

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/model"
)

// Status classifies the outcome of a fetch.
type Status int

const (
	StatusOK Status = iota
	StatusRedirect
	StatusNotModified
	StatusGone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRedirect:
		return "redirect"
	case StatusNotModified:
		return "not-modified"
	case StatusGone:
		return "gone"
	default:
		return "error"
	}
}

// Result is what a fetch hands back to the sync engine. Validators are
// filled for every 200 response; Entries only for StatusOK and StatusRedirect.
type Result struct {
	Status     Status
	Code       int
	Location   string // final URL after redirects
	Validators model.Validators
	Entries    []model.Entry
}

// Options tune the fetcher.
type Options struct {
	Timeout   time.Duration
	Retries   int
	UserAgent string
	HostDelay time.Duration
	Sanitize  bool
}

// DefaultOptions returns the settings used when none are configured.
func DefaultOptions() Options {
	return Options{
		Timeout:   30 * time.Second,
		Retries:   2,
		UserAgent: "feedsync/1.0",
		HostDelay: 500 * time.Millisecond,
	}
}

// Fetcher performs conditional HTTP fetches and parses RSS/Atom bodies.
type Fetcher struct {
	client        *http.Client
	parser        *gofeed.Parser
	opts          Options
	policy        *bluemonday.Policy
	domainLimiter *domainLimiter
}

// NewFetcher creates a new fetcher.
func NewFetcher(opts Options) *Fetcher {
	f := &Fetcher{
		client:        &http.Client{Timeout: opts.Timeout},
		parser:        gofeed.NewParser(),
		opts:          opts,
		domainLimiter: newDomainLimiter(opts.HostDelay),
	}
	if opts.Sanitize {
		f.policy = bluemonday.UGCPolicy()
	}
	return f
}

// Fetch requests source, presenting the cached validators so an unchanged
// feed can answer 304. HTTP outcomes are reported through Result.Status.
// Transport failures return a nil Result. A body that fails to parse returns
// both the error and a StatusError Result carrying the response validators.
func (f *Fetcher) Fetch(ctx context.Context, source string, cached model.Validators) (*Result, error) {
	domain := extractDomain(source)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", source, err)
	}
	defer f.domainLimiter.release(domain)

	resp, err := f.get(ctx, source, cached)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	res := &Result{Code: resp.StatusCode, Location: resp.Request.URL.String()}
	switch {
	case resp.StatusCode == http.StatusNotModified:
		res.Status = StatusNotModified
		return res, nil
	case resp.StatusCode == http.StatusGone:
		res.Status = StatusGone
		return res, nil
	case resp.StatusCode != http.StatusOK:
		res.Status = StatusError
		return res, nil
	case res.Location != source:
		res.Status = StatusRedirect
	default:
		res.Status = StatusOK
	}

	res.Validators = model.Validators{
		ETag:     model.StringPtr(resp.Header.Get("ETag")),
		Modified: model.StringPtr(resp.Header.Get("Last-Modified")),
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		res.Status = StatusError
		return res, fmt.Errorf("parse feed %s: %w", source, err)
	}
	res.Entries = make([]model.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		res.Entries = append(res.Entries, f.entry(item))
	}
	return res, nil
}

// get issues the request, retrying transport failures with exponential backoff.
func (f *Fetcher) get(ctx context.Context, source string, cached model.Validators) (*http.Response, error) {
	var resp *http.Response
	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if f.opts.UserAgent != "" {
			req.Header.Set("User-Agent", f.opts.UserAgent)
		}
		if cached.ETag != nil {
			req.Header.Set("If-None-Match", *cached.ETag)
		}
		if cached.Modified != nil {
			req.Header.Set("If-Modified-Since", *cached.Modified)
		}
		r, err := f.client.Do(req)
		if err != nil {
			log.WithFields(log.Fields{"source": source, "attempt": attempt}).Debugf("Fetch failed: %v", err)
			return err
		}
		resp = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	var b backoff.BackOff = eb
	if f.opts.Retries >= 0 {
		b = backoff.WithMaxRetries(b, uint64(f.opts.Retries))
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source, err)
	}
	return resp, nil
}

func (f *Fetcher) entry(item *gofeed.Item) model.Entry {
	e := model.Entry{
		ID:      model.StringPtr(item.GUID),
		Title:   model.StringPtr(item.Title),
		Link:    model.StringPtr(item.Link),
		Created: item.PublishedParsed,
		Updated: item.UpdatedParsed,
		Summary: model.StringPtr(f.clean(item.Description)),
	}
	if body := f.clean(item.Content); body != "" {
		e.Contents = []string{body}
	}
	return e
}

func (f *Fetcher) clean(html string) string {
	if f.policy == nil || html == "" {
		return html
	}
	return f.policy.Sanitize(html)
}
