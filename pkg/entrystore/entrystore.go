// Package entrystore is the content-addressed entry store. Every commit
// produces an entry at the address derived from its content; nothing committed
// is ever changed or erased. Updates append to an update chain and deletes
// write a tombstone that hides the entry from Fetch.
package entrystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/internal/keyValStore"
	"github.com/i5heu/ouroboros-courses/pkg/encoding"
	"github.com/i5heu/ouroboros-courses/pkg/metrics"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

var (
	ErrNotFound     = errors.New("entrystore: not found")
	ErrTombstoned   = errors.New("entrystore: address is tombstoned")
	ErrTypeMismatch = errors.New("entrystore: entry type mismatch")
	ErrInvalidEntry = errors.New("entrystore: invalid entry")
)

const (
	entryPrefix      = "Entry:"
	tombPrefix       = "Tomb:"
	replacesPrefix   = "Replaces:"
	replacedByPrefix = "ReplacedBy:"
)

// Entry is anything that can be committed. EntryType namespaces the address,
// so two entries of different types never collide.
type Entry interface {
	EntryType() string
}

// Record is a committed entry as it sits in the store.
type Record struct {
	Address   types.Address
	Type      string
	Body      []byte // deterministic CBOR of the entry
	Committed time.Time
}

type storedRecord struct {
	Type      string `cbor:"1,keyasint"`
	Body      []byte `cbor:"2,keyasint"`
	Committed int64  `cbor:"3,keyasint"`
}

type tombstone struct {
	At int64 `cbor:"1,keyasint"`
}

type Config struct {
	// Validator runs on every commit. Nil means NewStructValidator().
	Validator Validator
	// Compress enables LZMA for stored payloads of at least CompressionThreshold bytes.
	Compress             bool
	CompressionThreshold int
	Logger               *logrus.Logger
	Metrics              *metrics.Metrics
}

type Store struct {
	kv        keyValStore.Store
	log       *logrus.Entry
	validator Validator
	metrics   *metrics.Metrics

	compress             bool
	compressionThreshold int
}

func New(kv keyValStore.Store, conf Config) *Store {
	if conf.Validator == nil {
		conf.Validator = NewStructValidator()
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	return &Store{
		kv:                   kv,
		log:                  conf.Logger.WithField("component", "entrystore"),
		validator:            conf.Validator,
		metrics:              conf.Metrics,
		compress:             conf.Compress,
		compressionThreshold: conf.CompressionThreshold,
	}
}

// GenerateKeyFromPrefixAndHash builds the storage key of an address.
func GenerateKeyFromPrefixAndHash(prefix string, addr types.Address) []byte {
	return append([]byte(prefix), []byte(addr.String())...)
}

// AddressOf computes the address an entry would be committed at.
func AddressOf(e Entry) (types.Address, []byte, error) {
	body, err := encoding.Marshal(e)
	if err != nil {
		return types.Address{}, nil, fmt.Errorf("encode %s: %w", e.EntryType(), err)
	}
	return addressOf(e.EntryType(), body), body, nil
}

func addressOf(entryType string, body []byte) types.Address {
	buf := make([]byte, 0, len(entryType)+1+len(body))
	buf = append(buf, entryType...)
	buf = append(buf, 0x00)
	buf = append(buf, body...)
	return types.HashBytes(buf)
}

// Commit stores e and returns its address. Committing an entry that already
// exists is a no-op returning the same address.
func (s *Store) Commit(ctx context.Context, e Entry) (addr types.Address, err error) {
	defer func() { s.metrics.Store("commit", err) }()
	if err := ctx.Err(); err != nil {
		return types.Address{}, err
	}

	addr, body, err := s.prepare(e)
	if err != nil {
		return types.Address{}, err
	}

	err = s.kv.Update(func(txn keyValStore.Txn) error {
		return s.put(txn, addr, e.EntryType(), body)
	})
	if err != nil {
		return types.Address{}, err
	}

	s.log.WithFields(logrus.Fields{"type": e.EntryType(), "address": addr.String()}).Debug("entry committed")
	return addr, nil
}

// Update commits e as the successor of prev. prev must be live. The old entry
// stays fetchable at its own address.
func (s *Store) Update(ctx context.Context, prev types.Address, e Entry) (addr types.Address, err error) {
	defer func() { s.metrics.Store("update", err) }()
	if err := ctx.Err(); err != nil {
		return types.Address{}, err
	}

	addr, body, err := s.prepare(e)
	if err != nil {
		return types.Address{}, err
	}

	err = s.kv.Update(func(txn keyValStore.Txn) error {
		if err := s.checkLive(txn, prev); err != nil {
			return fmt.Errorf("update %s: %w", prev.Short(), err)
		}
		if err := s.put(txn, addr, e.EntryType(), body); err != nil {
			return err
		}
		if addr == prev {
			return nil
		}
		if err := txn.Set(GenerateKeyFromPrefixAndHash(replacesPrefix, addr), prev.Bytes()); err != nil {
			return err
		}
		return txn.Set(GenerateKeyFromPrefixAndHash(replacedByPrefix, prev), addr.Bytes())
	})
	if err != nil {
		return types.Address{}, err
	}

	s.log.WithFields(logrus.Fields{
		"type":     e.EntryType(),
		"address":  addr.String(),
		"replaces": prev.String(),
	}).Debug("entry updated")
	return addr, nil
}

// Get returns the raw record at addr. Tombstoned and missing addresses both
// yield ErrNotFound.
func (s *Store) Get(ctx context.Context, addr types.Address) (rec Record, err error) {
	defer func() { s.metrics.Store("get", err) }()
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	err = s.kv.View(func(txn keyValStore.Txn) error {
		if err := s.checkLive(txn, addr); err != nil {
			return err
		}
		raw, err := txn.Get(GenerateKeyFromPrefixAndHash(entryPrefix, addr))
		if err != nil {
			return err
		}
		rec, err = decodeRecord(addr, raw)
		return err
	})
	return rec, err
}

// Fetch decodes the entry at addr into out, which must be a pointer to the
// entry type.
func (s *Store) Fetch(ctx context.Context, addr types.Address, out Entry) error {
	rec, err := s.Get(ctx, addr)
	if err != nil {
		return err
	}
	if rec.Type != out.EntryType() {
		return fmt.Errorf("%w: %s is %q, want %q", ErrTypeMismatch, addr.Short(), rec.Type, out.EntryType())
	}
	if err := encoding.Unmarshal(rec.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", rec.Type, addr.Short(), err)
	}
	return nil
}

// Exists reports whether addr holds a live entry.
func (s *Store) Exists(ctx context.Context, addr types.Address) (bool, error) {
	_, err := s.Get(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Tombstone hides addr from every later read. The stored bytes stay on disk.
func (s *Store) Tombstone(ctx context.Context, addr types.Address) (err error) {
	defer func() { s.metrics.Store("tombstone", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}

	tomb, err := encoding.Marshal(tombstone{At: time.Now().UnixNano()})
	if err != nil {
		return err
	}

	err = s.kv.Update(func(txn keyValStore.Txn) error {
		if err := s.checkLive(txn, addr); err != nil {
			return err
		}
		return txn.Set(GenerateKeyFromPrefixAndHash(tombPrefix, addr), tomb)
	})
	if err != nil {
		return fmt.Errorf("tombstone %s: %w", addr.Short(), err)
	}

	s.log.WithField("address", addr.String()).Debug("entry tombstoned")
	return nil
}

// History returns addr followed by every predecessor on its update chain,
// newest first. Tombstoned predecessors are still listed.
func (s *Store) History(ctx context.Context, addr types.Address) ([]types.Address, error) {
	return s.walk(ctx, addr, replacesPrefix)
}

// Latest follows the update chain forward from addr and returns the newest
// successor, or addr itself if it was never updated.
func (s *Store) Latest(ctx context.Context, addr types.Address) (types.Address, error) {
	chain, err := s.walk(ctx, addr, replacedByPrefix)
	if err != nil {
		return types.Address{}, err
	}
	return chain[len(chain)-1], nil
}

func (s *Store) walk(ctx context.Context, start types.Address, prefix string) ([]types.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chain := []types.Address{start}
	visited := map[types.Address]struct{}{start: {}}

	err := s.kv.View(func(txn keyValStore.Txn) error {
		if _, err := txn.Get(GenerateKeyFromPrefixAndHash(entryPrefix, start)); err != nil {
			if errors.Is(err, keyValStore.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}

		current := start
		for {
			raw, err := txn.Get(GenerateKeyFromPrefixAndHash(prefix, current))
			if errors.Is(err, keyValStore.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			next, err := types.AddressFromBytes(raw)
			if err != nil {
				return err
			}
			// an entry updated back to an earlier content closes a loop
			if _, seen := visited[next]; seen {
				return nil
			}
			visited[next] = struct{}{}
			chain = append(chain, next)
			current = next
		}
	})
	if err != nil {
		return nil, fmt.Errorf("walk update chain of %s: %w", start.Short(), err)
	}
	return chain, nil
}

func (s *Store) prepare(e Entry) (types.Address, []byte, error) {
	if err := s.validator.Validate(e); err != nil {
		return types.Address{}, nil, err
	}
	return AddressOf(e)
}

func (s *Store) put(txn keyValStore.Txn, addr types.Address, entryType string, body []byte) error {
	if _, err := txn.Get(GenerateKeyFromPrefixAndHash(tombPrefix, addr)); err == nil {
		return fmt.Errorf("commit %s %s: %w", entryType, addr.Short(), ErrTombstoned)
	} else if !errors.Is(err, keyValStore.ErrKeyNotFound) {
		return err
	}

	key := GenerateKeyFromPrefixAndHash(entryPrefix, addr)
	if _, err := txn.Get(key); err == nil {
		return nil
	} else if !errors.Is(err, keyValStore.ErrKeyNotFound) {
		return err
	}

	raw, err := encoding.Marshal(storedRecord{Type: entryType, Body: body, Committed: time.Now().UnixNano()})
	if err != nil {
		return err
	}
	payload, err := encoding.EncodePayload(raw, s.compress && len(raw) >= s.compressionThreshold)
	if err != nil {
		return err
	}
	return txn.Set(key, payload)
}

func (s *Store) checkLive(txn keyValStore.Txn, addr types.Address) error {
	if _, err := txn.Get(GenerateKeyFromPrefixAndHash(tombPrefix, addr)); err == nil {
		return ErrNotFound
	} else if !errors.Is(err, keyValStore.ErrKeyNotFound) {
		return err
	}
	if _, err := txn.Get(GenerateKeyFromPrefixAndHash(entryPrefix, addr)); err != nil {
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func decodeRecord(addr types.Address, payload []byte) (Record, error) {
	raw, err := encoding.DecodePayload(payload)
	if err != nil {
		return Record{}, fmt.Errorf("decode payload of %s: %w", addr.Short(), err)
	}
	var sr storedRecord
	if err := encoding.Unmarshal(raw, &sr); err != nil {
		return Record{}, fmt.Errorf("decode record of %s: %w", addr.Short(), err)
	}
	return Record{
		Address:   addr,
		Type:      sr.Type,
		Body:      sr.Body,
		Committed: time.Unix(0, sr.Committed),
	}, nil
}
