// Package anchor gives mutable entities a permanent address on top of the
// immutable entry store.
//
// An entity is an anchor entry (its identity, committed once and never
// changed) plus a chain of version entries. A single "latest" link from the
// anchor points at the current version; updating the entity commits a new
// version and swaps that link. Deleting the entity tombstones only the anchor,
// which makes every read through it report "not found" while the version
// history stays in the store.
package anchor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/pkg/entrystore"
	"github.com/i5heu/ouroboros-courses/pkg/linkindex"
	"github.com/i5heu/ouroboros-courses/pkg/metrics"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

// ErrDeleted and ErrConcurrentUpdate are the errors callers are expected to
// branch on; the others point at misuse or damaged data.
var (
	ErrDeleted          = errors.New("anchor: entity is deleted or does not exist")
	ErrAnchorExists     = errors.New("anchor: anchor already has a latest version")
	ErrNoLatestVersion  = errors.New("anchor: live anchor has no latest version")
	ErrConcurrentUpdate = errors.New("anchor: latest version changed concurrently")
	ErrRequestMismatch  = errors.New("anchor: request id already used for a different create")
	ErrNoJournal        = errors.New("anchor: no journal configured")
)

// EntryStore is the part of entrystore.Store the engine needs.
type EntryStore interface {
	Commit(ctx context.Context, e entrystore.Entry) (types.Address, error)
	Update(ctx context.Context, prev types.Address, e entrystore.Entry) (types.Address, error)
	Get(ctx context.Context, addr types.Address) (entrystore.Record, error)
	Tombstone(ctx context.Context, addr types.Address) error
	History(ctx context.Context, addr types.Address) ([]types.Address, error)
}

// LinkIndex is the part of linkindex.Index the engine needs.
type LinkIndex interface {
	Add(ctx context.Context, base types.Address, linkType string, target types.Address, tag string) (linkindex.Link, error)
	Latest(ctx context.Context, base types.Address, linkType string) (linkindex.Link, int, error)
	Swap(ctx context.Context, base types.Address, linkType string, oldTarget, newTarget types.Address, tag string) (linkindex.Link, error)
	Compact(ctx context.Context, base types.Address, linkType string) (int, error)
}

// Version is one snapshot of an entity together with its address.
type Version[E entrystore.Entry] struct {
	Entry   E
	Address types.Address
}

type Config struct {
	// LinkType names the anchor -> latest version relation, e.g. "course_anchor->course".
	LinkType string
	// Journal enables CreateOnce. Optional.
	Journal Journal
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Engine manages entities with anchor type A and version type E.
type Engine[A, E entrystore.Entry] struct {
	store    EntryStore
	links    LinkIndex
	journal  Journal
	linkType string
	log      *logrus.Entry
	metrics  *metrics.Metrics
}

func New[A, E entrystore.Entry](store EntryStore, links LinkIndex, conf Config) *Engine[A, E] {
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	return &Engine[A, E]{
		store:    store,
		links:    links,
		journal:  conf.Journal,
		linkType: conf.LinkType,
		log:      conf.Logger.WithFields(logrus.Fields{"component": "anchor", "link_type": conf.LinkType}),
		metrics:  conf.Metrics,
	}
}

func (e *Engine[A, E]) LinkType() string {
	return e.linkType
}

// Create commits the anchor, the first version built by initial and the latest
// link between them. The three writes are not atomic: a failure leaves the
// earlier ones committed, and calling Create again with the same anchor
// completes the missing steps. Use CreateOnce to make retries explicit.
func (e *Engine[A, E]) Create(ctx context.Context, anchor A, initial func(anchorAddr types.Address) E) (anchorAddr, entryAddr types.Address, err error) {
	defer func() { e.metrics.Engine(e.linkType, "create", err) }()

	if anchorAddr, err = e.store.Commit(ctx, anchor); err != nil {
		return types.Address{}, types.Address{}, fmt.Errorf("commit anchor: %w", err)
	}
	if existing, _, err := e.links.Latest(ctx, anchorAddr, e.linkType); err == nil {
		return anchorAddr, existing.Target, ErrAnchorExists
	} else if !errors.Is(err, linkindex.ErrNoLink) {
		return anchorAddr, types.Address{}, err
	}

	if entryAddr, err = e.store.Commit(ctx, initial(anchorAddr)); err != nil {
		return anchorAddr, types.Address{}, fmt.Errorf("commit first version: %w", err)
	}
	if _, err = e.links.Add(ctx, anchorAddr, e.linkType, entryAddr, ""); err != nil {
		return anchorAddr, entryAddr, fmt.Errorf("link first version: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"anchor": anchorAddr.String(),
		"entry":  entryAddr.String(),
	}).Debug("versioned entity created")
	return anchorAddr, entryAddr, nil
}

// CreateOnce is Create keyed by a caller supplied request ID. Progress is
// journaled after every step, so a retry after a partial failure resumes where
// the previous attempt stopped and never creates a second anchor.
func (e *Engine[A, E]) CreateOnce(ctx context.Context, requestID string, anchor A, initial func(anchorAddr types.Address) E) (anchorAddr, entryAddr types.Address, err error) {
	defer func() { e.metrics.Engine(e.linkType, "create_once", err) }()
	if e.journal == nil {
		return types.Address{}, types.Address{}, ErrNoJournal
	}

	p, found, err := e.journal.Load(ctx, requestID)
	if err != nil {
		return types.Address{}, types.Address{}, err
	}
	wantAnchor, _, err := entrystore.AddressOf(anchor)
	if err != nil {
		return types.Address{}, types.Address{}, err
	}

	if found {
		if p.LinkType != e.linkType || (!p.Anchor.IsZero() && p.Anchor != wantAnchor) {
			return types.Address{}, types.Address{}, fmt.Errorf("%w: %s", ErrRequestMismatch, requestID)
		}
		if p.Linked {
			return p.Anchor, p.Entry, nil
		}
		e.log.WithField("request", requestID).Warn("resuming partial create")
	} else {
		p = Progress{LinkType: e.linkType}
	}

	if p.Anchor.IsZero() {
		if p.Anchor, err = e.store.Commit(ctx, anchor); err != nil {
			return types.Address{}, types.Address{}, fmt.Errorf("commit anchor: %w", err)
		}
		if err := e.journal.Save(ctx, requestID, p); err != nil {
			return p.Anchor, types.Address{}, err
		}
	}

	if p.Entry.IsZero() {
		if p.Entry, err = e.store.Commit(ctx, initial(p.Anchor)); err != nil {
			return p.Anchor, types.Address{}, fmt.Errorf("commit first version: %w", err)
		}
		if err := e.journal.Save(ctx, requestID, p); err != nil {
			return p.Anchor, p.Entry, err
		}
	}

	// the link may have been written by an attempt that failed to journal it
	existing, _, err := e.links.Latest(ctx, p.Anchor, e.linkType)
	switch {
	case err == nil && existing.Target == p.Entry:
	case err == nil || errors.Is(err, linkindex.ErrNoLink):
		if _, err := e.links.Add(ctx, p.Anchor, e.linkType, p.Entry, ""); err != nil {
			return p.Anchor, p.Entry, fmt.Errorf("link first version: %w", err)
		}
	default:
		return p.Anchor, p.Entry, err
	}

	p.Linked = true
	if err := e.journal.Save(ctx, requestID, p); err != nil {
		return p.Anchor, p.Entry, err
	}
	return p.Anchor, p.Entry, nil
}

// Anchor returns the identity record. ok is false if it was deleted or never
// existed.
func (e *Engine[A, E]) Anchor(ctx context.Context, anchorAddr types.Address) (a A, ok bool, err error) {
	a, err = entrystore.FetchAs[A](ctx, e.store, anchorAddr)
	if errors.Is(err, entrystore.ErrNotFound) {
		return a, false, nil
	}
	if err != nil {
		return a, false, err
	}
	return a, true, nil
}

// Latest returns the current version of the entity. ok is false when the
// anchor is deleted or never existed; that is not an error.
//
// A live anchor without a latest link is reported as ErrNoLatestVersion. If
// racing updates left several latest links the newest one is used and the
// anomaly is logged; Repair removes the extra links.
func (e *Engine[A, E]) Latest(ctx context.Context, anchorAddr types.Address) (v Version[E], ok bool, err error) {
	defer func() { e.metrics.Engine(e.linkType, "latest", err) }()

	if _, ok, err := e.Anchor(ctx, anchorAddr); err != nil || !ok {
		return v, false, err
	}

	link, live, err := e.links.Latest(ctx, anchorAddr, e.linkType)
	if errors.Is(err, linkindex.ErrNoLink) {
		e.metrics.Anomaly(e.linkType, "missing")
		return v, false, fmt.Errorf("%w: %s", ErrNoLatestVersion, anchorAddr.Short())
	}
	if err != nil {
		return v, false, err
	}
	if live > 1 {
		e.metrics.Anomaly(e.linkType, "multiple")
		e.log.WithFields(logrus.Fields{
			"anchor": anchorAddr.String(),
			"live":   live,
			"chosen": link.Target.String(),
		}).Warn("several latest links, using the newest")
	}

	entry, err := entrystore.FetchAs[E](ctx, e.store, link.Target)
	if err != nil {
		return v, false, fmt.Errorf("fetch latest version of %s: %w", anchorAddr.Short(), err)
	}
	return Version[E]{Entry: entry, Address: link.Target}, true, nil
}

// Update applies mutate to the current version, commits the result as its
// successor and moves the latest link. It returns the unchanged anchor address.
// If another writer moved the latest link in between, the new version stays in
// history and ErrConcurrentUpdate is returned.
func (e *Engine[A, E]) Update(ctx context.Context, anchorAddr types.Address, mutate func(current E) (E, error)) (_ types.Address, err error) {
	defer func() { e.metrics.Engine(e.linkType, "update", err) }()

	current, ok, err := e.Latest(ctx, anchorAddr)
	if err != nil {
		return types.Address{}, err
	}
	if !ok {
		return types.Address{}, fmt.Errorf("cannot update %s: %w", anchorAddr.Short(), ErrDeleted)
	}

	next, err := mutate(current.Entry)
	if err != nil {
		return types.Address{}, err
	}

	nextAddr, err := e.store.Update(ctx, current.Address, next)
	if err != nil {
		return types.Address{}, fmt.Errorf("commit new version: %w", err)
	}
	if nextAddr == current.Address {
		return anchorAddr, nil
	}

	if _, err := e.links.Swap(ctx, anchorAddr, e.linkType, current.Address, nextAddr, ""); err != nil {
		if errors.Is(err, linkindex.ErrStaleLink) {
			return types.Address{}, fmt.Errorf("%w: %s", ErrConcurrentUpdate, anchorAddr.Short())
		}
		return types.Address{}, fmt.Errorf("move latest link: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"anchor": anchorAddr.String(),
		"entry":  nextAddr.String(),
	}).Debug("versioned entity updated")
	return anchorAddr, nil
}

// Delete tombstones the anchor. Versions and links stay in the store but are
// unreachable through Latest from now on.
func (e *Engine[A, E]) Delete(ctx context.Context, anchorAddr types.Address) (_ types.Address, err error) {
	defer func() { e.metrics.Engine(e.linkType, "delete", err) }()

	if _, ok, err := e.Anchor(ctx, anchorAddr); err != nil {
		return types.Address{}, err
	} else if !ok {
		return types.Address{}, fmt.Errorf("delete %s: %w", anchorAddr.Short(), entrystore.ErrNotFound)
	}

	if err := e.store.Tombstone(ctx, anchorAddr); err != nil {
		return types.Address{}, err
	}

	e.log.WithField("anchor", anchorAddr.String()).Debug("anchor tombstoned")
	return anchorAddr, nil
}

// History returns the version addresses of a live entity, newest first.
func (e *Engine[A, E]) History(ctx context.Context, anchorAddr types.Address) ([]types.Address, error) {
	current, ok, err := e.Latest(ctx, anchorAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeleted
	}
	return e.store.History(ctx, current.Address)
}

// Repair removes all but the newest latest link of a live anchor and returns
// how many were removed.
func (e *Engine[A, E]) Repair(ctx context.Context, anchorAddr types.Address) (int, error) {
	if _, ok, err := e.Anchor(ctx, anchorAddr); err != nil {
		return 0, err
	} else if !ok {
		return 0, ErrDeleted
	}
	removed, err := e.links.Compact(ctx, anchorAddr, e.linkType)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.log.WithFields(logrus.Fields{"anchor": anchorAddr.String(), "removed": removed}).Info("latest links repaired")
	}
	return removed, nil
}
