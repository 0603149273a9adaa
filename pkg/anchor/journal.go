package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/i5heu/ouroboros-courses/internal/keyValStore"
	"github.com/i5heu/ouroboros-courses/pkg/encoding"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

// Progress records how far a keyed create got. A retry with the same request
// ID resumes after the last completed step.
type Progress struct {
	LinkType string        `cbor:"1,keyasint"`
	Anchor   types.Address `cbor:"2,keyasint"`
	Entry    types.Address `cbor:"3,keyasint"`
	Linked   bool          `cbor:"4,keyasint"`
}

// Journal persists Progress by request ID.
type Journal interface {
	Load(ctx context.Context, requestID string) (Progress, bool, error)
	Save(ctx context.Context, requestID string, p Progress) error
}

const requestPrefix = "Request:"

// KVJournal stores progress records next to the entries.
type KVJournal struct {
	kv keyValStore.Store
}

func NewKVJournal(kv keyValStore.Store) *KVJournal {
	return &KVJournal{kv: kv}
}

func (j *KVJournal) Load(ctx context.Context, requestID string) (Progress, bool, error) {
	if err := ctx.Err(); err != nil {
		return Progress{}, false, err
	}

	var p Progress
	found := false
	err := j.kv.View(func(txn keyValStore.Txn) error {
		raw, err := txn.Get([]byte(requestPrefix + requestID))
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return encoding.Unmarshal(raw, &p)
	})
	if err != nil {
		return Progress{}, false, fmt.Errorf("load request %s: %w", requestID, err)
	}
	return p, found, nil
}

func (j *KVJournal) Save(ctx context.Context, requestID string, p Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encoding.Marshal(p)
	if err != nil {
		return err
	}
	err = j.kv.Update(func(txn keyValStore.Txn) error {
		return txn.Set([]byte(requestPrefix+requestID), raw)
	})
	if err != nil {
		return fmt.Errorf("save request %s: %w", requestID, err)
	}
	return nil
}
