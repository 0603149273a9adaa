package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/pkg/anchor"
	"github.com/i5heu/ouroboros-courses/pkg/types"
	workerpool "github.com/i5heu/ouroboros-courses/pkg/workerPool"
)

// RepairReport summarizes one RepairAll pass.
type RepairReport struct {
	Courses  int
	Sections int
	// Removed counts the superfluous latest links that were dropped.
	Removed int
}

type repairResult struct {
	anchor  types.Address
	removed int
	err     error
}

// RepairAll compacts the latest links of every live course in the catalog and
// of every live section in those courses. Anchors deleted while the pass runs
// are skipped. The pass continues past failing anchors and returns their
// errors joined.
func (c *Coordinator) RepairAll(ctx context.Context, wp *workerpool.WorkerPool) (RepairReport, error) {
	var report RepairReport

	all, err := c.GetAllCourses(ctx)
	if err != nil {
		return report, fmt.Errorf("list courses: %w", err)
	}

	room := workerpool.CreateRoom[repairResult](wp)
	var submitErr error
	submit := func(addr types.Address, repair func(context.Context, types.Address) (int, error)) {
		if submitErr != nil {
			return
		}
		submitErr = room.NewTaskWaitForFreeSlot(ctx, func() repairResult {
			removed, err := repair(ctx, addr)
			return repairResult{anchor: addr, removed: removed, err: err}
		})
	}

	for _, course := range all {
		report.Courses++
		submit(course, c.RepairCourse)

		sections, err := c.ListSections(ctx, course)
		if err != nil {
			submitErr = errors.Join(submitErr, fmt.Errorf("list sections of %s: %w", course.Short(), err))
			break
		}
		for _, section := range sections {
			report.Sections++
			submit(section, c.RepairSection)
		}
	}

	var errs []error
	if submitErr != nil {
		errs = append(errs, submitErr)
	}
	for _, r := range room.Collect() {
		switch {
		case r.err == nil:
			report.Removed += r.removed
		case errors.Is(r.err, anchor.ErrDeleted):
		default:
			errs = append(errs, fmt.Errorf("repair %s: %w", r.anchor.Short(), r.err))
		}
	}

	c.log.WithFields(logrus.Fields{
		"courses":  report.Courses,
		"sections": report.Sections,
		"removed":  report.Removed,
	}).Debug("repair pass finished")
	return report, errors.Join(errs...)
}
