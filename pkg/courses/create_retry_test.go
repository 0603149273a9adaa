package courses

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/ouroboros-courses/pkg/anchor"
	"github.com/i5heu/ouroboros-courses/pkg/linkindex"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

var errLinkDown = errors.New("link index unavailable")

// failingAdd fails the next Add of each armed link type once.
type failingAdd struct {
	*linkindex.Index
	armed map[string]bool
}

func (f *failingAdd) Add(ctx context.Context, base types.Address, linkType string, target types.Address, tag string) (linkindex.Link, error) {
	if f.armed[linkType] {
		f.armed[linkType] = false
		return linkindex.Link{}, errLinkDown
	}
	return f.Index.Add(ctx, base, linkType, target, tag)
}

func newFailingCoordinator(t *testing.T) (*Coordinator, *failingAdd) {
	t.Helper()
	e := newEnv(t)
	links := &failingAdd{Index: e.links, armed: map[string]bool{}}
	c, err := New(context.Background(), e.store, links, Config{
		Agent:   "alice",
		Journal: anchor.NewKVJournal(e.kv),
		Logger:  e.log,
	})
	require.NoError(t, err)
	return c, links
}

func TestCreateCourseRetryListsCourse(t *testing.T) {
	ctx := context.Background()
	c, links := newFailingCoordinator(t)

	links.armed[CatalogCoursesLink] = true
	ca, err := c.CreateCourse(ctx, "Algebra", 1)
	require.ErrorIs(t, err, errLinkDown)

	all, err := c.GetAllCourses(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	again, err := c.CreateCourse(ctx, "Algebra", 1)
	assert.ErrorIs(t, err, anchor.ErrAnchorExists)
	assert.Equal(t, ca, again)

	all, err = c.GetAllCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{ca}, all)
	mine, err := c.GetMyCourses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{ca}, mine)
}

func TestCreateSectionRetryLinksAndCascades(t *testing.T) {
	ctx := context.Background()
	c, links := newFailingCoordinator(t)

	ca, err := c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)

	links.armed[CourseSectionsLink] = true
	sa, err := c.CreateSection(ctx, "Intro", ca, 2)
	require.ErrorIs(t, err, errLinkDown)

	sections, err := c.ListSections(ctx, ca)
	require.NoError(t, err)
	assert.Empty(t, sections)

	again, err := c.CreateSection(ctx, "Intro", ca, 2)
	assert.ErrorIs(t, err, anchor.ErrAnchorExists)
	assert.Equal(t, sa, again)

	sections, err = c.ListSections(ctx, ca)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{sa}, sections)

	_, err = c.DeleteCourse(ctx, ca)
	require.NoError(t, err)
	_, ok, err := c.GetLatestSection(ctx, sa)
	require.NoError(t, err)
	assert.False(t, ok, "section is cascaded with its course")
}

func TestCreateSectionOnce(t *testing.T) {
	ctx := context.Background()
	c, links := newFailingCoordinator(t)

	ca, err := c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)

	links.armed[CourseSectionsLink] = true
	sa, err := c.CreateSectionOnce(ctx, "req-1", "Intro", ca, 2)
	require.ErrorIs(t, err, errLinkDown)

	again, err := c.CreateSectionOnce(ctx, "req-1", "Intro", ca, 2)
	require.NoError(t, err)
	assert.Equal(t, sa, again)

	sections, err := c.ListSections(ctx, ca)
	require.NoError(t, err)
	assert.Equal(t, []types.Address{sa}, sections)

	v, ok, err := c.GetLatestSection(ctx, sa)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Intro", v.Entry.Title)

	_, err = c.CreateSectionOnce(ctx, "req-1", "Other", ca, 2)
	assert.ErrorIs(t, err, anchor.ErrRequestMismatch)

	_, err = c.DeleteCourse(ctx, ca)
	require.NoError(t, err)
	_, err = c.CreateSectionOnce(ctx, "req-2", "Late", ca, 3)
	assert.ErrorIs(t, err, ErrCourseDeleted)
}
