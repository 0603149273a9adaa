// Package linkindex stores typed directed edges between entry addresses.
//
// An edge is (base, link type, target, tag). Several edges may share base and
// link type, and the same quadruple may even exist more than once; each
// instance has its own ID. Removing an edge marks one instance removed instead
// of erasing it.
package linkindex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/internal/keyValStore"
	"github.com/i5heu/ouroboros-courses/pkg/metrics"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

var (
	ErrLinkNotFound    = errors.New("linkindex: no live link matches")
	ErrNoLink          = errors.New("linkindex: no live link for base and link type")
	ErrStaleLink       = errors.New("linkindex: link to replace is no longer live")
	ErrInvalidLinkType = errors.New("linkindex: invalid link type")
)

const linkPrefix = "Link:"

// Link is one live edge instance.
type Link struct {
	ID      string
	Base    types.Address
	Type    string
	Target  types.Address
	Tag     string
	Created time.Time
}

// TagMatch filters links by tag.
type TagMatch struct {
	tag   string
	exact bool
}

// AnyTag matches every tag.
func AnyTag() TagMatch { return TagMatch{} }

// ExactTag matches only tag.
func ExactTag(tag string) TagMatch { return TagMatch{tag: tag, exact: true} }

func (m TagMatch) matches(tag string) bool {
	return !m.exact || m.tag == tag
}

type Index struct {
	kv      keyValStore.Store
	log     *logrus.Entry
	metrics *metrics.Metrics
}

func New(kv keyValStore.Store, logger *logrus.Logger, m *metrics.Metrics) *Index {
	if logger == nil {
		logger = logrus.New()
	}
	return &Index{
		kv:      kv,
		log:     logger.WithField("component", "linkindex"),
		metrics: m,
	}
}

type storedLink struct {
	key []byte
	id  string
	rec record
}

func prefixFor(base types.Address, linkType string) []byte {
	return []byte(linkPrefix + base.String() + "/" + linkType + "/")
}

func validateLinkType(linkType string) error {
	if linkType == "" || strings.Contains(linkType, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidLinkType, linkType)
	}
	return nil
}

// Add records a new live edge. No uniqueness is enforced.
func (i *Index) Add(ctx context.Context, base types.Address, linkType string, target types.Address, tag string) (l Link, err error) {
	defer func() { i.metrics.Link("add", err) }()
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	if err := validateLinkType(linkType); err != nil {
		return Link{}, err
	}

	err = i.kv.Update(func(txn keyValStore.Txn) error {
		var err error
		l, err = i.add(txn, base, linkType, target, tag)
		return err
	})
	if err != nil {
		return Link{}, fmt.Errorf("add link %s: %w", linkType, err)
	}

	i.log.WithFields(logrus.Fields{
		"base":      base.String(),
		"link_type": linkType,
		"target":    target.String(),
	}).Debug("link added")
	return l, nil
}

// Remove marks the oldest live edge matching the exact quadruple as removed.
func (i *Index) Remove(ctx context.Context, base types.Address, linkType string, target types.Address, tag string) (err error) {
	defer func() { i.metrics.Link("remove", err) }()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateLinkType(linkType); err != nil {
		return err
	}

	err = i.kv.Update(func(txn keyValStore.Txn) error {
		links, err := i.scan(txn, base, linkType)
		if err != nil {
			return err
		}
		for _, sl := range links {
			if sl.rec.Target == target && sl.rec.Tag == tag {
				return i.markRemoved(txn, sl)
			}
		}
		return ErrLinkNotFound
	})
	if err != nil {
		return fmt.Errorf("remove link %s from %s: %w", linkType, base.Short(), err)
	}

	i.log.WithFields(logrus.Fields{
		"base":      base.String(),
		"link_type": linkType,
		"target":    target.String(),
	}).Debug("link removed")
	return nil
}

// Query returns the targets of every live edge from base with linkType whose
// tag matches, oldest first. Duplicate edges yield duplicate targets.
func (i *Index) Query(ctx context.Context, base types.Address, linkType string, match TagMatch) ([]types.Address, error) {
	links, err := i.Links(ctx, base, linkType, match)
	if err != nil {
		return nil, err
	}
	targets := make([]types.Address, 0, len(links))
	for _, l := range links {
		targets = append(targets, l.Target)
	}
	return targets, nil
}

// Links is Query returning full edge records.
func (i *Index) Links(ctx context.Context, base types.Address, linkType string, match TagMatch) (out []Link, err error) {
	defer func() { i.metrics.Link("query", err) }()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateLinkType(linkType); err != nil {
		return nil, err
	}

	err = i.kv.View(func(txn keyValStore.Txn) error {
		links, err := i.scan(txn, base, linkType)
		if err != nil {
			return err
		}
		for _, sl := range links {
			if match.matches(sl.rec.Tag) {
				out = append(out, toLink(base, linkType, sl))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query links %s from %s: %w", linkType, base.Short(), err)
	}
	return out, nil
}

// Latest reads a relation that should hold at most one live edge. With no live
// edge it returns ErrNoLink. With several it returns the newest one; live
// reports how many there were so the caller can flag the anomaly.
func (i *Index) Latest(ctx context.Context, base types.Address, linkType string) (l Link, live int, err error) {
	links, err := i.Links(ctx, base, linkType, AnyTag())
	if err != nil {
		return Link{}, 0, err
	}
	if len(links) == 0 {
		return Link{}, 0, ErrNoLink
	}
	return links[len(links)-1], len(links), nil
}

// Swap atomically removes the live edge base -> oldTarget and adds
// base -> newTarget with the same tag. If the old edge is not live any more
// nothing is written and ErrStaleLink is returned. A transaction conflict with
// a concurrent writer is reported as ErrStaleLink as well.
func (i *Index) Swap(ctx context.Context, base types.Address, linkType string, oldTarget, newTarget types.Address, tag string) (l Link, err error) {
	defer func() { i.metrics.Link("swap", err) }()
	if err := ctx.Err(); err != nil {
		return Link{}, err
	}
	if err := validateLinkType(linkType); err != nil {
		return Link{}, err
	}

	err = i.kv.Update(func(txn keyValStore.Txn) error {
		links, err := i.scan(txn, base, linkType)
		if err != nil {
			return err
		}
		var old *storedLink
		for idx := range links {
			if links[idx].rec.Target == oldTarget && links[idx].rec.Tag == tag {
				old = &links[idx]
				break
			}
		}
		if old == nil {
			return ErrStaleLink
		}
		if err := i.markRemoved(txn, *old); err != nil {
			return err
		}
		l, err = i.add(txn, base, linkType, newTarget, tag)
		return err
	})
	if errors.Is(err, keyValStore.ErrConflict) {
		// a concurrent writer touched the same edges first
		err = fmt.Errorf("%w: %w", ErrStaleLink, err)
	}
	if err != nil {
		return Link{}, fmt.Errorf("swap link %s from %s: %w", linkType, base.Short(), err)
	}

	i.log.WithFields(logrus.Fields{
		"base":      base.String(),
		"link_type": linkType,
		"old":       oldTarget.String(),
		"new":       newTarget.String(),
	}).Debug("link swapped")
	return l, nil
}

// Compact removes every live edge from base with linkType except the newest.
// It returns how many edges were removed.
func (i *Index) Compact(ctx context.Context, base types.Address, linkType string) (removed int, err error) {
	defer func() { i.metrics.Link("compact", err) }()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateLinkType(linkType); err != nil {
		return 0, err
	}

	err = i.kv.Update(func(txn keyValStore.Txn) error {
		links, err := i.scan(txn, base, linkType)
		if err != nil {
			return err
		}
		for idx := 0; idx < len(links)-1; idx++ {
			if err := i.markRemoved(txn, links[idx]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("compact links %s from %s: %w", linkType, base.Short(), err)
	}

	if removed > 0 {
		i.log.WithFields(logrus.Fields{
			"base":      base.String(),
			"link_type": linkType,
			"removed":   removed,
		}).Info("links compacted")
	}
	return removed, nil
}

func (i *Index) add(txn keyValStore.Txn, base types.Address, linkType string, target types.Address, tag string) (Link, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Link{}, err
	}
	rec := record{Target: target, Tag: tag, Created: time.Now().UnixNano()}
	key := append(prefixFor(base, linkType), id.String()...)
	if err := txn.Set(key, encodeRecord(rec)); err != nil {
		return Link{}, err
	}
	return toLink(base, linkType, storedLink{key: key, id: id.String(), rec: rec}), nil
}

func (i *Index) markRemoved(txn keyValStore.Txn, sl storedLink) error {
	sl.rec.Removed = true
	sl.rec.RemovedAt = time.Now().UnixNano()
	return txn.Set(sl.key, encodeRecord(sl.rec))
}

// scan returns the live edges from base with linkType in key order, which is
// creation order because edge IDs are UUIDv7.
func (i *Index) scan(txn keyValStore.Txn, base types.Address, linkType string) ([]storedLink, error) {
	prefix := prefixFor(base, linkType)
	var links []storedLink
	err := txn.Iterate(prefix, func(key, value []byte) error {
		rec, err := decodeRecord(value)
		if err != nil {
			return fmt.Errorf("edge %s: %w", key, err)
		}
		if rec.Removed {
			return nil
		}
		links = append(links, storedLink{
			key: key,
			id:  string(bytes.TrimPrefix(key, prefix)),
			rec: rec,
		})
		return nil
	})
	return links, err
}

func toLink(base types.Address, linkType string, sl storedLink) Link {
	return Link{
		ID:      sl.id,
		Base:    base,
		Type:    linkType,
		Target:  sl.rec.Target,
		Tag:     sl.rec.Tag,
		Created: time.Unix(0, sl.rec.Created),
	}
}
