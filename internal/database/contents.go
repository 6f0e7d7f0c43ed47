package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feedsync/internal/model"
)

var contentColumns = []string{
	"contents.id", "contents.link", "contents.title", "contents.created_date", "contents.body",
	"contents.is_read", "contents.is_starred", "contents.feed_id", "feeds.name",
}

type contentRepo struct {
	t *sqlTx
}

func (r contentRepo) Get(ctx context.Context, id string) (*model.Content, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select(contentColumns...).From("contents").
		Join("feeds", "feeds.id = contents.feed_id").
		Where(sb.Equal("contents.id", id))
	c, err := scanContent(r.t.queryRow(ctx, sb))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content %q: %w", id, err)
	}
	return c, nil
}

// Exists reports whether an entry with this identifier was already ingested,
// regardless of which feed it came from.
func (r contentRepo) Exists(ctx context.Context, id string) (bool, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("COUNT(*)").From("contents").Where(sb.Equal("id", id))
	var n int64
	if err := r.t.queryRow(ctx, sb).Scan(&n); err != nil {
		return false, fmt.Errorf("probe content %q: %w", id, err)
	}
	return n > 0, nil
}

// List returns all contents, newest first.
func (r contentRepo) List(ctx context.Context) ([]model.Content, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select(contentColumns...).From("contents").
		Join("feeds", "feeds.id = contents.feed_id").
		OrderBy("contents.created_date").Desc()
	rows, err := r.t.query(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	defer rows.Close()
	var contents []model.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		contents = append(contents, *c)
	}
	return contents, rows.Err()
}

func (r contentRepo) Add(ctx context.Context, c *model.Content) error {
	ib := r.t.flavor.NewInsertBuilder()
	ib.InsertInto("contents").
		Cols("id", "link", "title", "created_date", "body", "is_read", "is_starred", "feed_id").
		Values(c.ID, c.Link, c.Title, c.Created, c.Text, c.Read, c.Star, c.FeedID)
	if _, err := r.t.exec(ctx, ib); err != nil {
		return fmt.Errorf("add content %q: %w", c.ID, err)
	}
	return nil
}

func scanContent(s scanner) (*model.Content, error) {
	var (
		c                 model.Content
		link, title, body sql.NullString
	)
	if err := s.Scan(&c.ID, &link, &title, &c.Created, &body, &c.Read, &c.Star, &c.FeedID, &c.FeedName); err != nil {
		return nil, err
	}
	c.Link = nullString(link)
	c.Title = nullString(title)
	c.Text = nullString(body)
	return &c, nil
}
