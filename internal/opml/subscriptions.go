package opml

import (
	"context"
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/resource"
)

// Report summarises an import.
type Report struct {
	Imported int `json:"imported"`
	Total    int `json:"total"`
}

// Import subscribes to every feed in subs whose source is not yet stored.
// Each subscription is committed on its own; failures are logged and skipped.
func Import(ctx context.Context, store database.Store, subs []Subscription) (Report, error) {
	report := Report{Total: len(subs)}
	for _, sub := range subs {
		created, err := importOne(ctx, store, sub)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			log.WithFields(log.Fields{"source": sub.Source, "name": sub.Name}).
				Warnf("Importing feed failed: %v", err)
			continue
		}
		if created {
			report.Imported++
		}
	}
	log.WithFields(log.Fields{"imported": report.Imported, "total": report.Total}).Info("OPML import finished")
	return report, nil
}

func importOne(ctx context.Context, store database.Store, sub Subscription) (bool, error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	_, err = tx.Feeds().GetByField(ctx, "source", sub.Source)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return false, err
	}
	tags := sub.Tags
	if _, err := resource.CreateFeed(ctx, tx, resource.FeedPayload{
		Source: sub.Source,
		Name:   sub.Name,
		Tags:   &tags,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Export writes every stored feed as OPML.
func Export(ctx context.Context, store database.Store, w io.Writer) error {
	tx, err := store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	feeds, err := tx.Feeds().List(ctx)
	if err != nil {
		return err
	}
	subs := make([]Subscription, 0, len(feeds))
	for _, f := range feeds {
		subs = append(subs, Subscription{Name: f.Name, Source: f.Source, Tags: f.TagNames()})
	}
	return Render(w, "feedsync subscriptions", subs)
}
