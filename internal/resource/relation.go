package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/model"
)

// Diff returns the names present only in current and those present only in
// desired. Duplicates in desired collapse to one.
func Diff(current, desired []string) (toRemove, toAdd []string) {
	return lo.Difference(lo.Uniq(current), lo.Uniq(desired))
}

// ReconcileTags makes the feed's tag set equal to desired. Tags leaving the
// set are only unlinked; tags entering it are looked up by exact name and
// created when missing. Running it twice with the same input is a no-op.
func ReconcileTags(ctx context.Context, tx database.Tx, feed *model.Feed, desired []string) error {
	feedID, ok := feed.ID.Get()
	if !ok {
		return errors.New("reconcile tags: feed has no identity")
	}
	linked := lo.KeyBy(feed.Tags, func(t model.Tag) string { return t.Name })
	toRemove, toAdd := Diff(feed.TagNames(), desired)

	for _, name := range toRemove {
		tagID, _ := linked[name].ID.Get()
		if err := tx.Feeds().Unlink(ctx, feedID, tagID); err != nil {
			return fmt.Errorf("unlink tag %s: %w", name, err)
		}
	}
	for _, name := range toAdd {
		tag, err := GetOrCreateTag(ctx, tx, name)
		if err != nil {
			return err
		}
		tagID, _ := tag.ID.Get()
		if err := tx.Feeds().Link(ctx, feedID, tagID); err != nil {
			return fmt.Errorf("link tag %s: %w", name, err)
		}
	}
	return nil
}

// GetOrCreateTag returns the tag called name, creating it first if needed.
func GetOrCreateTag(ctx context.Context, tx database.Tx, name string) (*model.Tag, error) {
	tag, err := tx.Tags().GetByField(ctx, "name", name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	tag = &model.Tag{Name: name}
	if err := tx.Tags().Add(ctx, tag); err != nil {
		return nil, fmt.Errorf("create tag %s: %w", name, err)
	}
	return tag, nil
}
