// Package resource exposes feeds, tags and contents through one generic
// create/read/update/delete engine configured per entity by a Descriptor.
package resource

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryan-buckman/feedsync/internal/database"
)

// Op is a set of operations an entity permits.
type Op uint8

const (
	OpReadOne Op = 1 << iota
	OpReadAll
	OpCreate
	OpUpdate
	OpDelete

	ReadOnly = OpReadOne | OpReadAll
	AllOps   = ReadOnly | OpCreate | OpUpdate | OpDelete
)

// ErrNotAllowed is returned for an operation outside the entity's Ops.
var ErrNotAllowed = errors.New("operation not allowed")

// Handler is the type-erased view of an Engine, so a router can hold one
// table of heterogeneous entities.
type Handler interface {
	Name() string
	Allows(op Op) bool
	ReadOne(ctx context.Context, id string) (any, error)
	ReadAll(ctx context.Context) (any, error)
	Create(ctx context.Context, body []byte) (any, error)
	Update(ctx context.Context, id string, body []byte) (any, error)
	Delete(ctx context.Context, id string) (any, error)
}

// Descriptor binds an entity type T with key K and write payload P to the
// store. Hooks for operations not in Ops may be left nil.
type Descriptor[T any, K comparable, P any] struct {
	Name      string
	Ops       Op
	ParseID   func(string) (K, error)
	Validator Validator[P]

	Get    func(ctx context.Context, tx database.Tx, id K) (*T, error)
	List   func(ctx context.Context, tx database.Tx) ([]T, error)
	Create func(ctx context.Context, tx database.Tx, p P) (*T, error)
	// Update overwrites current with p and returns the stored result.
	Update func(ctx context.Context, tx database.Tx, current *T, p P) (*T, error)
	Remove func(ctx context.Context, tx database.Tx, id K) error

	Represent func(T) any
}

// Engine runs every request for one entity inside its own unit of work.
type Engine[T any, K comparable, P any] struct {
	store database.Store
	desc  Descriptor[T, K, P]
}

// NewEngine creates an engine for desc.
func NewEngine[T any, K comparable, P any](store database.Store, desc Descriptor[T, K, P]) *Engine[T, K, P] {
	return &Engine[T, K, P]{store: store, desc: desc}
}

// Name returns the entity name, used as its route.
func (e *Engine[T, K, P]) Name() string { return e.desc.Name }

// Allows reports whether op is permitted.
func (e *Engine[T, K, P]) Allows(op Op) bool { return e.desc.Ops&op == op }

// ReadOne returns the representation of the instance with the given id.
func (e *Engine[T, K, P]) ReadOne(ctx context.Context, id string) (any, error) {
	if !e.Allows(OpReadOne) {
		return nil, e.notAllowed()
	}
	return e.inTx(ctx, func(tx database.Tx) (any, error) {
		v, err := e.get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		return e.desc.Represent(*v), nil
	})
}

// ReadAll returns the representations of every instance.
func (e *Engine[T, K, P]) ReadAll(ctx context.Context) (any, error) {
	if !e.Allows(OpReadAll) {
		return nil, e.notAllowed()
	}
	return e.inTx(ctx, func(tx database.Tx) (any, error) {
		items, err := e.desc.List(ctx, tx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, v := range items {
			out = append(out, e.desc.Represent(v))
		}
		return out, nil
	})
}

// Create validates body, stores a new instance and returns it with its
// assigned identity.
func (e *Engine[T, K, P]) Create(ctx context.Context, body []byte) (any, error) {
	if !e.Allows(OpCreate) {
		return nil, e.notAllowed()
	}
	p, err := e.desc.Validator.Parse(body)
	if err != nil {
		return nil, err
	}
	return e.inTx(ctx, func(tx database.Tx) (any, error) {
		v, err := e.desc.Create(ctx, tx, p)
		if err != nil {
			return nil, err
		}
		return e.desc.Represent(*v), nil
	})
}

// Update fully overwrites an existing instance. Existence is checked before
// the body is validated.
func (e *Engine[T, K, P]) Update(ctx context.Context, id string, body []byte) (any, error) {
	if !e.Allows(OpUpdate) {
		return nil, e.notAllowed()
	}
	return e.inTx(ctx, func(tx database.Tx) (any, error) {
		current, err := e.get(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		p, err := e.desc.Validator.Parse(body)
		if err != nil {
			return nil, err
		}
		v, err := e.desc.Update(ctx, tx, current, p)
		if err != nil {
			return nil, err
		}
		return e.desc.Represent(*v), nil
	})
}

// Delete removes an instance and returns its representation as it was.
func (e *Engine[T, K, P]) Delete(ctx context.Context, id string) (any, error) {
	if !e.Allows(OpDelete) {
		return nil, e.notAllowed()
	}
	return e.inTx(ctx, func(tx database.Tx) (any, error) {
		key, err := e.parseID(id)
		if err != nil {
			return nil, err
		}
		v, err := e.desc.Get(ctx, tx, key)
		if err != nil {
			return nil, e.notFound(id, err)
		}
		snapshot := e.desc.Represent(*v)
		if err := e.desc.Remove(ctx, tx, key); err != nil {
			return nil, e.notFound(id, err)
		}
		return snapshot, nil
	})
}

func (e *Engine[T, K, P]) get(ctx context.Context, tx database.Tx, id string) (*T, error) {
	key, err := e.parseID(id)
	if err != nil {
		return nil, err
	}
	v, err := e.desc.Get(ctx, tx, key)
	if err != nil {
		return nil, e.notFound(id, err)
	}
	return v, nil
}

// parseID reports unparseable identifiers as missing rows.
func (e *Engine[T, K, P]) parseID(id string) (K, error) {
	key, err := e.desc.ParseID(id)
	if err != nil {
		var zero K
		return zero, fmt.Errorf("%s %s: %w", e.desc.Name, id, database.ErrNotFound)
	}
	return key, nil
}

func (e *Engine[T, K, P]) notAllowed() error {
	return fmt.Errorf("%s: %w", e.desc.Name, ErrNotAllowed)
}

func (e *Engine[T, K, P]) notFound(id string, err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", e.desc.Name, id, database.ErrNotFound)
	}
	return err
}

func (e *Engine[T, K, P]) inTx(ctx context.Context, fn func(tx database.Tx) (any, error)) (any, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}
