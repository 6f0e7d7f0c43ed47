package resource

import (
	"context"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/model"
)

// CreatedLayout is the wire format of content creation dates, in local time.
const CreatedLayout = "2006-01-02T15:04:05"

// ContentView is the public representation of an ingested entry.
type ContentView struct {
	ID          string  `json:"id"`
	Link        *string `json:"link"`
	Title       *string `json:"title"`
	CreatedDate string  `json:"created_date"`
	Feed        string  `json:"feed"`
	Text        *string `json:"text"`
	Read        bool    `json:"read"`
	Star        bool    `json:"star"`
}

// ContentDescriptor exposes contents read-only. They are written only by
// the refresh engine.
func ContentDescriptor() Descriptor[model.Content, string, struct{}] {
	return Descriptor[model.Content, string, struct{}]{
		Name: "content",
		Ops:  ReadOnly,
		ParseID: func(s string) (string, error) {
			return s, nil
		},
		Get: func(ctx context.Context, tx database.Tx, id string) (*model.Content, error) {
			return tx.Contents().Get(ctx, id)
		},
		List: func(ctx context.Context, tx database.Tx) ([]model.Content, error) {
			return tx.Contents().List(ctx)
		},
		Represent: func(c model.Content) any {
			return ContentView{
				ID:          c.ID,
				Link:        c.Link,
				Title:       c.Title,
				CreatedDate: c.Created.Local().Format(CreatedLayout),
				Feed:        c.FeedName,
				Text:        c.Text,
				Read:        c.Read,
				Star:        c.Star,
			}
		},
	}
}

// Handlers returns the engines for every exposed entity.
func Handlers(store database.Store) []Handler {
	return []Handler{
		NewEngine(store, TagDescriptor()),
		NewEngine(store, FeedDescriptor()),
		NewEngine(store, ContentDescriptor()),
	}
}
