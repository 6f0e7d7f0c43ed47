package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feedsync/internal/model"
)

type tagRepo struct {
	t *sqlTx
}

func (r tagRepo) Get(ctx context.Context, id int64) (*model.Tag, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("id", "name").From("tags").Where(sb.Equal("id", id))
	tag, err := scanTag(r.t.queryRow(ctx, sb))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return tag, nil
}

func (r tagRepo) GetByField(ctx context.Context, field, value string) (*model.Tag, error) {
	if field != "name" {
		return nil, fmt.Errorf("tag field %q is not unique", field)
	}
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("id", "name").From("tags").Where(sb.Equal("name", value))
	tag, err := scanTag(r.t.queryRow(ctx, sb))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag %q: %w", value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %q: %w", value, err)
	}
	return tag, nil
}

func (r tagRepo) List(ctx context.Context) ([]model.Tag, error) {
	sb := r.t.flavor.NewSelectBuilder()
	sb.Select("id", "name").From("tags").OrderBy("id").Asc()
	rows, err := r.t.query(ctx, sb)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
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

func (r tagRepo) Add(ctx context.Context, tag *model.Tag) error {
	ib := r.t.flavor.NewInsertBuilder()
	ib.InsertInto("tags").Cols("name").Values(tag.Name)
	id, err := r.t.insert(ctx, ib)
	if err != nil {
		return fmt.Errorf("add tag %q: %w", tag.Name, err)
	}
	tag.ID = model.NewID(id)
	return nil
}

func (r tagRepo) Merge(ctx context.Context, tag *model.Tag) error {
	id, ok := tag.ID.Get()
	if !ok {
		return fmt.Errorf("merge tag %q: no identity", tag.Name)
	}
	ub := r.t.flavor.NewUpdateBuilder()
	ub.Update("tags").Set(ub.Assign("name", tag.Name)).Where(ub.Equal("id", id))
	return r.t.execOne(ctx, ub, fmt.Sprintf("merge tag %d", id))
}

func (r tagRepo) Remove(ctx context.Context, id int64) error {
	db := r.t.flavor.NewDeleteBuilder()
	db.DeleteFrom("feed_tags").Where(db.Equal("tag_id", id))
	if _, err := r.t.exec(ctx, db); err != nil {
		return fmt.Errorf("unlink tag %d: %w", id, err)
	}
	db = r.t.flavor.NewDeleteBuilder()
	db.DeleteFrom("tags").Where(db.Equal("id", id))
	return r.t.execOne(ctx, db, fmt.Sprintf("remove tag %d", id))
}

func scanTag(s scanner) (*model.Tag, error) {
	var (
		tag model.Tag
		id  int64
	)
	if err := s.Scan(&id, &tag.Name); err != nil {
		return nil, err
	}
	tag.ID = model.NewID(id)
	return &tag, nil
}
