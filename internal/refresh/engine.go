package refresh

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/model"
	"github.com/bryan-buckman/feedsync/internal/rss"
)

// FeedFetcher performs a conditional fetch of one feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, source string, cached model.Validators) (*rss.Result, error)
}

// Summary reports the outcome of one cycle.
type Summary struct {
	FeedsUpdated int     `json:"feeds_updated"`
	NewItems     int     `json:"new_items"`
	TimeSpent    float64 `json:"time_spent"`
}

// Engine walks every feed, fetches it and ingests new entries. Each feed is
// committed on its own, so a failure on one feed keeps earlier feeds.
type Engine struct {
	store   database.Store
	fetcher FeedFetcher
	metrics *Metrics
	now     func() time.Time
}

// NewEngine creates a sync engine. metrics may be nil.
func NewEngine(store database.Store, fetcher FeedFetcher, metrics *Metrics) *Engine {
	return &Engine{store: store, fetcher: fetcher, metrics: metrics, now: time.Now}
}

// Run performs one full cycle. Fetch failures skip the feed; store failures
// abort the cycle.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	feeds, err := e.listFeeds(ctx)
	if err != nil {
		return sum, err
	}
	log.WithField("feeds", len(feeds)).Info("Refreshing feeds")

	for _, feed := range feeds {
		added, updated, err := e.syncFeed(ctx, feed)
		if err != nil {
			sum.TimeSpent = time.Since(start).Seconds()
			return sum, err
		}
		if updated {
			sum.FeedsUpdated++
			sum.NewItems += added
		}
	}

	sum.TimeSpent = time.Since(start).Seconds()
	log.WithFields(log.Fields{
		"feeds_updated": sum.FeedsUpdated,
		"new_items":     sum.NewItems,
		"time_spent":    sum.TimeSpent,
	}).Info("Refresh completed")
	return sum, nil
}

func (e *Engine) listFeeds(ctx context.Context) ([]model.Feed, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	feeds, err := tx.Feeds().List(ctx)
	if err != nil {
		return nil, err
	}
	return feeds, tx.Commit()
}

// syncFeed reports how many entries were added and whether the feed counts
// as updated.
func (e *Engine) syncFeed(ctx context.Context, feed model.Feed) (int, bool, error) {
	logger := log.WithFields(log.Fields{"feed": feed.Name, "source": feed.Source})

	res, err := e.fetcher.Fetch(ctx, feed.Source, feed.Validators)
	if err != nil {
		logger.Errorf("Fetching feed failed: %v", err)
		e.metrics.observeFetch(rss.StatusError)
		if res == nil {
			return 0, false, nil
		}
		// The server answered, so its validators replace the cached ones.
		_, _, err := e.ingest(ctx, feed, logger, res.Validators, nil)
		return 0, false, err
	}
	e.metrics.observeFetch(res.Status)

	switch res.Status {
	case rss.StatusRedirect:
		logger.WithField("location", res.Location).Info("Feed is redirected")
	case rss.StatusGone:
		logger.Warn("Feed is gone")
		return 0, false, nil
	case rss.StatusNotModified:
		logger.WithField("status", res.Code).Error("Feed not modified")
		return 0, false, nil
	case rss.StatusError:
		logger.WithField("status", res.Code).Error("Feed returned an error status")
		return 0, false, nil
	}

	return e.ingest(ctx, feed, logger, res.Validators, res.Entries)
}

// ingest stores validators and new entries of one feed in a single unit of
// work. It reports false when the feed disappeared in the meantime.
func (e *Engine) ingest(ctx context.Context, feed model.Feed, logger *log.Entry, validators model.Validators, entries []model.Entry) (int, bool, error) {
	feedID, _ := feed.ID.Get()
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	// Reload inside the unit of work so only the validators change.
	current, err := tx.Feeds().Get(ctx, feedID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Warn("Feed was removed during refresh")
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	current.Validators = validators
	if err := tx.Feeds().Merge(ctx, current); err != nil {
		return 0, false, fmt.Errorf("store validators of %s: %w", feed.Name, err)
	}

	added := 0
	for _, entry := range entries {
		if entry.ID == nil {
			logger.WithFields(log.Fields{"title": deref(entry.Title), "link": deref(entry.Link)}).
				Warn("Entry has no id, skipping")
			continue
		}
		exists, err := tx.Contents().Exists(ctx, *entry.ID)
		if err != nil {
			return 0, false, err
		}
		if exists {
			continue
		}
		if err := tx.Contents().Add(ctx, newContent(entry, feedID, e.now())); err != nil {
			return 0, false, fmt.Errorf("ingest %s: %w", feed.Name, err)
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	logger.WithField("new_items", added).Debug("Feed refreshed")
	return added, true, nil
}

// newContent builds the stored row for an entry. The creation date falls
// back from the entry's own date to its update date to now; the text from
// the joined content parts to the summary.
func newContent(entry model.Entry, feedID int64, now time.Time) *model.Content {
	c := &model.Content{
		ID:     *entry.ID,
		Title:  entry.Title,
		Link:   entry.Link,
		FeedID: feedID,
	}
	switch {
	case entry.Created != nil:
		c.Created = *entry.Created
	case entry.Updated != nil:
		c.Created = *entry.Updated
	default:
		c.Created = now
	}
	if text := strings.Join(entry.Contents, "\n"); text != "" {
		c.Text = &text
	} else {
		c.Text = entry.Summary
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
