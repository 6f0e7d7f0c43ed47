package resource

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/model"
)

// FeedPayload is the write body of a feed. A nil Tags leaves the feed's tags
// untouched; an empty one clears them.
type FeedPayload struct {
	Source string    `json:"source"`
	Name   string    `json:"name"`
	Tags   *[]string `json:"tags"`
}

// FeedView is the public representation of a feed.
type FeedView struct {
	ID     int64    `json:"id"`
	Source string   `json:"source"`
	Name   string   `json:"name"`
	Tags   []string `json:"tags"`
}

// NewFeedView represents f with its tag names sorted.
func NewFeedView(f model.Feed) FeedView {
	id, _ := f.ID.Get()
	return FeedView{ID: id, Source: f.Source, Name: f.Name, Tags: f.TagNames()}
}

// FeedDescriptor binds feeds to the store.
func FeedDescriptor() Descriptor[model.Feed, int64, FeedPayload] {
	return Descriptor[model.Feed, int64, FeedPayload]{
		Name:      "feed",
		Ops:       AllOps,
		ParseID:   parseInt64,
		Validator: NewSchemaValidator[FeedPayload]("feed", feedSchema),
		Get: func(ctx context.Context, tx database.Tx, id int64) (*model.Feed, error) {
			return tx.Feeds().Get(ctx, id)
		},
		List: func(ctx context.Context, tx database.Tx) ([]model.Feed, error) {
			return tx.Feeds().List(ctx)
		},
		Create: CreateFeed,
		Update: updateFeed,
		Remove: func(ctx context.Context, tx database.Tx, id int64) error {
			return tx.Feeds().Remove(ctx, id)
		},
		Represent: func(f model.Feed) any { return NewFeedView(f) },
	}
}

// CreateFeed stores a new feed from p and links its tags.
func CreateFeed(ctx context.Context, tx database.Tx, p FeedPayload) (*model.Feed, error) {
	if err := feedUnique(ctx, tx, model.ID{}, p); err != nil {
		return nil, err
	}
	feed := &model.Feed{Source: p.Source, Name: p.Name}
	if err := tx.Feeds().Add(ctx, feed); err != nil {
		return nil, err
	}
	if p.Tags != nil {
		if err := ReconcileTags(ctx, tx, feed, *p.Tags); err != nil {
			return nil, err
		}
	}
	return reloadFeed(ctx, tx, feed)
}

func updateFeed(ctx context.Context, tx database.Tx, current *model.Feed, p FeedPayload) (*model.Feed, error) {
	if err := feedUnique(ctx, tx, current.ID, p); err != nil {
		return nil, err
	}
	current.Source = p.Source
	current.Name = p.Name
	if err := tx.Feeds().Merge(ctx, current); err != nil {
		return nil, err
	}
	if p.Tags != nil {
		if err := ReconcileTags(ctx, tx, current, *p.Tags); err != nil {
			return nil, err
		}
	}
	return reloadFeed(ctx, tx, current)
}

// feedUnique rejects a payload whose name or source belongs to a feed other
// than self.
func feedUnique(ctx context.Context, tx database.Tx, self model.ID, p FeedPayload) error {
	for _, field := range []struct{ name, value string }{
		{"name", p.Name},
		{"source", p.Source},
	} {
		other, err := tx.Feeds().GetByField(ctx, field.name, field.value)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if other.ID != self {
			return fmt.Errorf("%w: a feed with %s %q already exists", database.ErrConflict, field.name, field.value)
		}
	}
	return nil
}

func reloadFeed(ctx context.Context, tx database.Tx, feed *model.Feed) (*model.Feed, error) {
	id, _ := feed.ID.Get()
	return tx.Feeds().Get(ctx, id)
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
