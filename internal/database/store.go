// Package database provides storage backends for feeds, tags and contents.
package database

import (
	"context"
	"errors"

	"github.com/bryan-buckman/feedsync/internal/model"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a row with the requested identity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would break a uniqueness constraint.
	ErrConflict = errors.New("conflict")
)

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Begin opens a unit of work. Nothing written through the returned Tx is
	// durable until Commit.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one unit of work. Rollback after Commit is a no-op, so callers can
// always defer it.
type Tx interface {
	Feeds() FeedRepository
	Tags() TagRepository
	Contents() ContentRepository

	Commit() error
	Rollback() error
}

// FeedRepository persists feeds and their tag links.
type FeedRepository interface {
	// Get returns the feed with its tags loaded.
	Get(ctx context.Context, id int64) (*model.Feed, error)
	// GetByField looks a feed up by one of its unique fields, "name" or "source".
	GetByField(ctx context.Context, field, value string) (*model.Feed, error)
	List(ctx context.Context) ([]model.Feed, error)
	// Add inserts the feed and assigns its ID. Tags are not linked.
	Add(ctx context.Context, f *model.Feed) error
	// Merge writes every scalar field of an existing feed, validators included.
	Merge(ctx context.Context, f *model.Feed) error
	// Remove deletes the feed and its tag links. Ingested contents are never
	// deleted, so a feed that still owns any yields ErrConflict.
	Remove(ctx context.Context, id int64) error

	Link(ctx context.Context, feedID, tagID int64) error
	Unlink(ctx context.Context, feedID, tagID int64) error
}

// TagRepository persists tags.
type TagRepository interface {
	Get(ctx context.Context, id int64) (*model.Tag, error)
	// GetByField looks a tag up by its unique "name" field.
	GetByField(ctx context.Context, field, value string) (*model.Tag, error)
	List(ctx context.Context) ([]model.Tag, error)
	Add(ctx context.Context, t *model.Tag) error
	Merge(ctx context.Context, t *model.Tag) error
	// Remove deletes the tag and unlinks it from every feed.
	Remove(ctx context.Context, id int64) error
}

// ContentRepository persists ingested entries. Contents are append-only.
type ContentRepository interface {
	Get(ctx context.Context, id string) (*model.Content, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]model.Content, error)
	Add(ctx context.Context, c *model.Content) error
}
