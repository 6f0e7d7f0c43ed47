package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/model"
)

// TagPayload is the write body of a tag.
type TagPayload struct {
	Name string `json:"name"`
}

// TagView is the public representation of a tag.
type TagView struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TagDescriptor binds tags to the store.
func TagDescriptor() Descriptor[model.Tag, int64, TagPayload] {
	return Descriptor[model.Tag, int64, TagPayload]{
		Name:      "tag",
		Ops:       AllOps,
		ParseID:   parseInt64,
		Validator: NewSchemaValidator[TagPayload]("tag", tagSchema),
		Get: func(ctx context.Context, tx database.Tx, id int64) (*model.Tag, error) {
			return tx.Tags().Get(ctx, id)
		},
		List: func(ctx context.Context, tx database.Tx) ([]model.Tag, error) {
			return tx.Tags().List(ctx)
		},
		Create: func(ctx context.Context, tx database.Tx, p TagPayload) (*model.Tag, error) {
			if err := tagUnique(ctx, tx, model.ID{}, p.Name); err != nil {
				return nil, err
			}
			tag := &model.Tag{Name: p.Name}
			if err := tx.Tags().Add(ctx, tag); err != nil {
				return nil, err
			}
			return tag, nil
		},
		Update: func(ctx context.Context, tx database.Tx, current *model.Tag, p TagPayload) (*model.Tag, error) {
			if err := tagUnique(ctx, tx, current.ID, p.Name); err != nil {
				return nil, err
			}
			current.Name = p.Name
			if err := tx.Tags().Merge(ctx, current); err != nil {
				return nil, err
			}
			return current, nil
		},
		Remove: func(ctx context.Context, tx database.Tx, id int64) error {
			return tx.Tags().Remove(ctx, id)
		},
		Represent: func(t model.Tag) any {
			id, _ := t.ID.Get()
			return TagView{ID: id, Name: t.Name}
		},
	}
}

func tagUnique(ctx context.Context, tx database.Tx, self model.ID, name string) error {
	other, err := tx.Tags().GetByField(ctx, "name", name)
	if errors.Is(err, database.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if other.ID != self {
		return fmt.Errorf("%w: a tag named %q already exists", database.ErrConflict, name)
	}
	return nil
}
