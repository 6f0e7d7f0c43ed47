package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feedsync/internal/model"
)

var feedColumns = []string{"id", "source", "name", "etag", "modified"}

type feedRepo struct {
	t *sqlTx
}

func (r feedRepo) Get(ctx context.Context, id int64) (*model.Feed, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("id", id))
	f, err := scanFeed(r.t.queryRow(ctx, sb))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	if f.Tags, err = r.tags(ctx, id); err != nil {
		return nil, err
	}
	return f, nil
}

func (r feedRepo) GetByField(ctx context.Context, field, value string) (*model.Feed, error) {
	if field != "name" && field != "source" {
		return nil, fmt.Errorf("feed field %q is not unique", field)
	}
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal(field, value))
	f, err := scanFeed(r.t.queryRow(ctx, sb))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feed %s=%q: %w", field, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feed by %s: %w", field, err)
	}
	id, _ := f.ID.Get()
	if f.Tags, err = r.tags(ctx, id); err != nil {
		return nil, err
	}
	return f, nil
}

// List returns all feeds ordered by id, with their tags.
func (r feedRepo) List(ctx context.Context) ([]model.Feed, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").OrderBy("id").Asc()
	rows, err := r.t.query(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	links, err := r.allTags(ctx)
	if err != nil {
		return nil, err
	}
	for i := range feeds {
		id, _ := feeds[i].ID.Get()
		feeds[i].Tags = links[id]
	}
	return feeds, nil
}

func (r feedRepo) Add(ctx context.Context, f *model.Feed) error {
	ib := r.t.flavor.NewInsertBuilder()
	ib.InsertInto("feeds").Cols("source", "name", "etag", "modified").
		Values(f.Source, f.Name, f.Validators.ETag, f.Validators.Modified)
	id, err := r.t.insert(ctx, ib)
	if err != nil {
		return fmt.Errorf("add feed %q: %w", f.Name, err)
	}
	f.ID = model.NewID(id)
	return nil
}

func (r feedRepo) Merge(ctx context.Context, f *model.Feed) error {
	id, ok := f.ID.Get()
	if !ok {
		return fmt.Errorf("merge feed %q: no identity", f.Name)
	}
	ub := r.t.flavor.NewUpdateBuilder()
	ub.Update("feeds").Set(
		ub.Assign("source", f.Source),
		ub.Assign("name", f.Name),
		ub.Assign("etag", f.Validators.ETag),
		ub.Assign("modified", f.Validators.Modified),
	).Where(ub.Equal("id", id))
	return r.t.execOne(ctx, ub, fmt.Sprintf("merge feed %d", id))
}

func (r feedRepo) Remove(ctx context.Context, id int64) error {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("contents").Where(sb.Equal("feed_id", id))
	var n int64
	if err := r.t.queryRow(ctx, sb).Scan(&n); err != nil {
		return fmt.Errorf("count contents of feed %d: %w", id, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: feed %d still has %d ingested entries", ErrConflict, id, n)
	}

	links := r.t.flavor.NewDeleteBuilder()
	links.DeleteFrom("feed_tags").Where(links.Equal("feed_id", id))
	if _, err := r.t.exec(ctx, links); err != nil {
		return fmt.Errorf("unlink tags of feed %d: %w", id, err)
	}
	db := r.t.flavor.NewDeleteBuilder()
	db.DeleteFrom("feeds").Where(db.Equal("id", id))
	return r.t.execOne(ctx, db, fmt.Sprintf("remove feed %d", id))
}

func (r feedRepo) Link(ctx context.Context, feedID, tagID int64) error {
	ib := r.t.flavor.NewInsertBuilder()
	ib.InsertInto("feed_tags").Cols("feed_id", "tag_id").Values(feedID, tagID)
	if _, err := r.t.exec(ctx, ib); err != nil {
		return fmt.Errorf("link feed %d to tag %d: %w", feedID, tagID, err)
	}
	return nil
}

func (r feedRepo) Unlink(ctx context.Context, feedID, tagID int64) error {
	db := r.t.flavor.NewDeleteBuilder()
	db.DeleteFrom("feed_tags").Where(db.Equal("feed_id", feedID), db.Equal("tag_id", tagID))
	if _, err := r.t.exec(ctx, db); err != nil {
		return fmt.Errorf("unlink feed %d from tag %d: %w", feedID, tagID, err)
	}
	return nil
}

func (r feedRepo) tags(ctx context.Context, feedID int64) ([]model.Tag, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("tags.id", "tags.name").From("tags").
		Join("feed_tags", "feed_tags.tag_id = tags.id").
		Where(sb.Equal("feed_tags.feed_id", feedID)).
		OrderBy("tags.name").Asc()
	rows, err := r.t.query(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("tags of feed %d: %w", feedID, err)
	}
	defer rows.Close()
	var tags []model.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, rows.Err()
}

// allTags returns every feed's tags keyed by feed id.
func (r feedRepo) allTags(ctx context.Context) (map[int64][]model.Tag, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("feed_tags.feed_id", "tags.id", "tags.name").From("feed_tags").
		Join("tags", "tags.id = feed_tags.tag_id").
		OrderBy("tags.name").Asc()
	rows, err := r.t.query(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("list feed tags: %w", err)
	}
	defer rows.Close()
	links := make(map[int64][]model.Tag)
	for rows.Next() {
		var feedID, tagID int64
		var name string
		if err := rows.Scan(&feedID, &tagID, &name); err != nil {
			return nil, err
		}
		links[feedID] = append(links[feedID], model.Tag{ID: model.NewID(tagID), Name: name})
	}
	return links, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(s scanner) (*model.Feed, error) {
	var (
		f              model.Feed
		id             int64
		etag, modified sql.NullString
	)
	if err := s.Scan(&id, &f.Source, &f.Name, &etag, &modified); err != nil {
		return nil, err
	}
	f.ID = model.NewID(id)
	f.Validators = model.Validators{ETag: nullString(etag), Modified: nullString(modified)}
	return &f, nil
}
