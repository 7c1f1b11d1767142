// Package docstore provides atomic, serializable read-modify-write access
// to named collections shared by the API process and the scheduler loop.
// Backends differ in medium (file, Redis, Postgres) but all honor the same
// contract: no caller ever observes a partial write, and a successful
// Update is durable before it returns.
package docstore

import (
	"context"
	"encoding/json"

	dErrors "arcpay/pkg/domain-errors"
)

// UpdateFunc receives the current raw JSON document (nil when the
// collection has never been written) and returns the replacement document.
// Returning changed == false skips persistence entirely. A returned error
// aborts the update and leaves the prior durable state intact.
type UpdateFunc func(raw []byte) (out []byte, changed bool, err error)

// Store is the single source of truth for all orchestration state.
type Store interface {
	// Update runs fn under an exclusive lock scoped to the collection.
	Update(ctx context.Context, collection string, fn UpdateFunc) error
	// Load returns a consistent snapshot of the current contents. It never
	// mutates; backends may briefly serialize with writers to avoid
	// observing a partial write.
	Load(ctx context.Context, collection string) ([]byte, error)
}

// ErrUnavailable marks a backing-medium failure. Callers must not assume
// partial success.
var ErrUnavailable = dErrors.New(dErrors.CodeStoreUnavailable, "document store unavailable")

func unavailable(op string, err error) error {
	return dErrors.Wrap(dErrors.CodeStoreUnavailable, "document store: "+op, err)
}

// UpdateSlice is the typed convenience most repositories build on: it
// unmarshals the collection into a slice, applies the mutator, and writes
// the result back inside a single Update transaction.
func UpdateSlice[T any](ctx context.Context, s Store, collection string, fn func(items []T) ([]T, bool, error)) error {
	return s.Update(ctx, collection, func(raw []byte) ([]byte, bool, error) {
		var items []T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, false, unavailable("decode "+collection, err)
			}
		}
		next, changed, err := fn(items)
		if err != nil || !changed {
			return nil, false, err
		}
		out, err := json.Marshal(next)
		if err != nil {
			return nil, false, unavailable("encode "+collection, err)
		}
		return out, true, nil
	})
}

// LoadSlice reads and decodes the collection.
func LoadSlice[T any](ctx context.Context, s Store, collection string) ([]T, error) {
	raw, err := s.Load(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, unavailable("decode "+collection, err)
	}
	return items, nil
}
