package courses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	workerpool "github.com/i5heu/ouroboros-courses/pkg/workerPool"
)

func TestRepairAll(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: 3})
	t.Cleanup(wp.Close)

	algebra, err := c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)
	physics, err := c.CreateCourse(ctx, "Physics", 2)
	require.NoError(t, err)
	intro, err := c.CreateSection(ctx, "Intro", algebra, 3)
	require.NoError(t, err)
	_, err = c.CreateSection(ctx, "Mechanics", physics, 4)
	require.NoError(t, err)
	gone, err := c.CreateCourse(ctx, "Gone", 5)
	require.NoError(t, err)
	_, err = c.DeleteCourse(ctx, gone)
	require.NoError(t, err)

	// a second latest link on one course and one section
	v, _, err := c.GetLatestCourse(ctx, algebra)
	require.NoError(t, err)
	racing := v.Entry
	racing.Title = "racing"
	racingAddr, err := c.store.Update(ctx, v.Address, racing)
	require.NoError(t, err)
	_, err = c.links.Add(ctx, algebra, CourseLatestLink, racingAddr, "")
	require.NoError(t, err)

	s, _, err := c.GetLatestSection(ctx, intro)
	require.NoError(t, err)
	renamed := s.Entry
	renamed.Title = "renamed"
	renamedAddr, err := c.store.Update(ctx, s.Address, renamed)
	require.NoError(t, err)
	_, err = c.links.Add(ctx, intro, SectionLatestLink, renamedAddr, "")
	require.NoError(t, err)

	report, err := c.RepairAll(ctx, wp)
	require.NoError(t, err)
	assert.Equal(t, RepairReport{Courses: 2, Sections: 2, Removed: 2}, report)

	report, err = c.RepairAll(ctx, wp)
	require.NoError(t, err)
	assert.Zero(t, report.Removed)

	v, _, err = c.GetLatestCourse(ctx, algebra)
	require.NoError(t, err)
	assert.Equal(t, "racing", v.Entry.Title)
	s, _, err = c.GetLatestSection(ctx, intro)
	require.NoError(t, err)
	assert.Equal(t, "renamed", s.Entry.Title)
}

func TestRepairAllClosedPool(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t)
	_, err := c.CreateCourse(ctx, "Algebra", 1)
	require.NoError(t, err)

	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: 1})
	wp.Close()

	_, err = c.RepairAll(ctx, wp)
	assert.ErrorIs(t, err, workerpool.ErrClosed)
}
