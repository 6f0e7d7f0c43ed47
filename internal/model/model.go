// Package model defines shared data structures.
package model

import (
	"sort"
	"strconv"
	"time"
)

// ID is an optional store-assigned identity. A row that has not been
// persisted yet carries an unset ID.
type ID struct {
	value int64
	valid bool
}

// NewID returns an assigned identity.
func NewID(v int64) ID {
	return ID{value: v, valid: true}
}

// Get returns the identity and whether it has been assigned.
func (id ID) Get() (int64, bool) {
	return id.value, id.valid
}

// Valid reports whether the identity has been assigned.
func (id ID) Valid() bool {
	return id.valid
}

// String renders the identity, or "unassigned".
func (id ID) String() string {
	if !id.valid {
		return "unassigned"
	}
	return strconv.FormatInt(id.value, 10)
}

// Validators are the conditional-fetch tokens cached per feed.
// Both are nullable and opaque to everything but the fetcher.
type Validators struct {
	ETag     *string
	Modified *string
}

// Feed represents a subscribed syndication source.
type Feed struct {
	ID         ID
	Source     string
	Name       string
	Validators Validators
	Tags       []Tag
}

// TagNames returns the names of the feed's tags, sorted.
func (f Feed) TagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for _, t := range f.Tags {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

// Tag is a named label attachable to many feeds.
type Tag struct {
	ID   ID
	Name string
}

// Content represents a single entry ingested from a feed. Its ID is the
// identifier supplied by the feed itself.
type Content struct {
	ID       string
	Link     *string
	Title    *string
	Created  time.Time
	Text     *string
	Read     bool
	Star     bool
	FeedID   int64
	FeedName string // loaded from the owning feed, read-only
}

// Entry is one item as returned by a feed fetch, before ingestion.
type Entry struct {
	ID       *string
	Title    *string
	Link     *string
	Created  *time.Time
	Updated  *time.Time
	Contents []string
	Summary  *string
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
