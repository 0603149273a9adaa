package entrystore

import (
	"context"
	"fmt"

	"github.com/i5heu/ouroboros-courses/pkg/encoding"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

// Getter is the read side of Store.
type Getter interface {
	Get(ctx context.Context, addr types.Address) (Record, error)
}

// FetchAs fetches the entry at addr as an E.
func FetchAs[E Entry](ctx context.Context, g Getter, addr types.Address) (E, error) {
	var e E
	rec, err := g.Get(ctx, addr)
	if err != nil {
		return e, err
	}
	if rec.Type != e.EntryType() {
		return e, fmt.Errorf("%w: %s is %q, want %q", ErrTypeMismatch, addr.Short(), rec.Type, e.EntryType())
	}
	if err := encoding.Unmarshal(rec.Body, &e); err != nil {
		return e, fmt.Errorf("decode %s %s: %w", rec.Type, addr.Short(), err)
	}
	return e, nil
}
