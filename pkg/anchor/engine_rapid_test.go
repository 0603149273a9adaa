package anchor

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"github.com/i5heu/ouroboros-courses/pkg/types"
)

type modelEntity struct {
	anchor   types.Address
	title    string
	versions int
	deleted  bool
}

// engineMachine drives an engine with random creates, updates and deletes and
// compares it with a plain in-memory model.
type engineMachine struct {
	f        *fixture
	ctx      context.Context
	entities []*modelEntity
	nonce    int64
}

func (m *engineMachine) live() []*modelEntity {
	var out []*modelEntity
	for _, e := range m.entities {
		if !e.deleted {
			out = append(out, e)
		}
	}
	return out
}

func (m *engineMachine) Create(t *rapid.T) {
	title := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "title")
	m.nonce++
	anchorAddr, _, err := m.f.engine.Create(m.ctx, docAnchor{Title: title, Nonce: m.nonce}, initialDoc(title))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m.entities = append(m.entities, &modelEntity{anchor: anchorAddr, title: title, versions: 1})
}

func (m *engineMachine) Update(t *rapid.T) {
	live := m.live()
	if len(live) == 0 {
		t.Skip("nothing to update")
	}
	e := rapid.SampledFrom(live).Draw(t, "entity")
	title := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "newTitle")

	got, err := m.f.engine.Update(m.ctx, e.anchor, retitle(title))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != e.anchor {
		t.Fatalf("update moved the anchor: %s != %s", got, e.anchor)
	}
	if title != e.title {
		e.versions++
	}
	e.title = title
}

func (m *engineMachine) Delete(t *rapid.T) {
	live := m.live()
	if len(live) == 0 {
		t.Skip("nothing to delete")
	}
	e := rapid.SampledFrom(live).Draw(t, "entity")
	if _, err := m.f.engine.Delete(m.ctx, e.anchor); err != nil {
		t.Fatalf("delete: %v", err)
	}
	e.deleted = true
}

func (m *engineMachine) UpdateDeleted(t *rapid.T) {
	var deleted []*modelEntity
	for _, e := range m.entities {
		if e.deleted {
			deleted = append(deleted, e)
		}
	}
	if len(deleted) == 0 {
		t.Skip("nothing deleted")
	}
	e := rapid.SampledFrom(deleted).Draw(t, "entity")
	if _, err := m.f.engine.Update(m.ctx, e.anchor, retitle("zombie")); err == nil {
		t.Fatalf("update of deleted %s succeeded", e.anchor.Short())
	}
}

func (m *engineMachine) Check(t *rapid.T) {
	for _, e := range m.entities {
		v, ok, err := m.f.engine.Latest(m.ctx, e.anchor)
		if err != nil {
			t.Fatalf("latest %s: %v", e.anchor.Short(), err)
		}
		if ok == e.deleted {
			t.Fatalf("latest %s: ok=%v but deleted=%v", e.anchor.Short(), ok, e.deleted)
		}
		if e.deleted {
			continue
		}
		if v.Entry.Title != e.title {
			t.Fatalf("latest %s: title %q, want %q", e.anchor.Short(), v.Entry.Title, e.title)
		}
		if v.Entry.Anchor != e.anchor {
			t.Fatalf("version of %s points back at %s", e.anchor.Short(), v.Entry.Anchor.Short())
		}
		_, live, err := m.f.links.Latest(m.ctx, e.anchor, docLink)
		if err != nil || live != 1 {
			t.Fatalf("%s has %d latest links (err %v)", e.anchor.Short(), live, err)
		}
		// titles may repeat, so the chain can be shorter than the update count
		history, err := m.f.engine.History(m.ctx, e.anchor)
		if err != nil {
			t.Fatalf("history %s: %v", e.anchor.Short(), err)
		}
		if len(history) == 0 || len(history) > e.versions {
			t.Fatalf("history %s has %d entries, at most %d expected", e.anchor.Short(), len(history), e.versions)
		}
	}
}

func TestEngineProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &engineMachine{f: buildFixture(), ctx: context.Background()}
		t.Repeat(map[string]func(*rapid.T){
			"Create":        m.Create,
			"Update":        m.Update,
			"Delete":        m.Delete,
			"UpdateDeleted": m.UpdateDeleted,
			"":              m.Check,
		})
	})
}
