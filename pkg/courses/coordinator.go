// Package courses builds the course -> section -> content hierarchy on top of
// the anchor versioning engine.
//
// Courses and sections are versioned entities with anchors. Content is a plain
// entry that sections point at through a multiset relation, so one content
// item can be reused by several sections and survives their deletion. What a
// delete does to linked entities is decided per relation, see Relation.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i5heu/ouroboros-courses/pkg/anchor"
	"github.com/i5heu/ouroboros-courses/pkg/entrystore"
	"github.com/i5heu/ouroboros-courses/pkg/linkindex"
	"github.com/i5heu/ouroboros-courses/pkg/metrics"
	"github.com/i5heu/ouroboros-courses/pkg/types"
)

var (
	ErrCourseDeleted  = errors.New("courses: course is deleted")
	ErrSectionDeleted = errors.New("courses: section is deleted")
	ErrNotEnrolled    = errors.New("courses: not enrolled in course")
	ErrNoAgent        = errors.New("courses: agent name is required")
)

// CatalogName is the name of the root catalog anchor.
const CatalogName = "course_catalog"

// EntryStore is what the coordinator needs from entrystore.Store.
type EntryStore interface {
	anchor.EntryStore
	Exists(ctx context.Context, addr types.Address) (bool, error)
}

// LinkIndex is what the coordinator needs from linkindex.Index.
type LinkIndex interface {
	anchor.LinkIndex
	Remove(ctx context.Context, base types.Address, linkType string, target types.Address, tag string) error
	Query(ctx context.Context, base types.Address, linkType string, match linkindex.TagMatch) ([]types.Address, error)
}

type Config struct {
	// Agent is the name of the acting agent. Courses it creates list it as
	// teacher and enrollments list it as student.
	Agent string
	// Relations overrides entries of DefaultRelations by link type.
	Relations map[string]Relation
	// Journal enables CreateCourseOnce and CreateSectionOnce.
	Journal anchor.Journal
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

type Coordinator struct {
	store     EntryStore
	links     LinkIndex
	courses   *anchor.Engine[CourseAnchor, Course]
	sections  *anchor.Engine[SectionAnchor, Section]
	relations map[string]Relation
	log       *logrus.Entry

	agent   types.Address
	catalog types.Address
}

// New commits the catalog anchor and the agent entry if they are not there yet
// and returns a coordinator acting as that agent.
func New(ctx context.Context, store EntryStore, links LinkIndex, conf Config) (*Coordinator, error) {
	if conf.Agent == "" {
		return nil, ErrNoAgent
	}
	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}

	relations := DefaultRelations()
	for lt, r := range conf.Relations {
		r.LinkType = lt
		relations[lt] = r
	}

	c := &Coordinator{
		store: store,
		links: links,
		courses: anchor.New[CourseAnchor, Course](store, links, anchor.Config{
			LinkType: CourseLatestLink,
			Journal:  conf.Journal,
			Logger:   conf.Logger,
			Metrics:  conf.Metrics,
		}),
		sections: anchor.New[SectionAnchor, Section](store, links, anchor.Config{
			LinkType: SectionLatestLink,
			Journal:  conf.Journal,
			Logger:   conf.Logger,
			Metrics:  conf.Metrics,
		}),
		relations: relations,
		log:       conf.Logger.WithField("component", "courses"),
	}

	var err error
	if c.catalog, err = store.Commit(ctx, CatalogAnchor{Name: CatalogName}); err != nil {
		return nil, fmt.Errorf("commit catalog: %w", err)
	}
	if c.agent, err = store.Commit(ctx, AgentEntry{Name: conf.Agent}); err != nil {
		return nil, fmt.Errorf("commit agent %q: %w", conf.Agent, err)
	}

	c.log.WithFields(logrus.Fields{
		"agent":   c.agent.String(),
		"catalog": c.catalog.String(),
	}).Info("course coordinator ready")
	return c, nil
}

// Agent returns the address of the acting agent.
func (c *Coordinator) Agent() types.Address { return c.agent }

// Catalog returns the address of the course catalog anchor.
func (c *Coordinator) Catalog() types.Address { return c.catalog }

// Relation returns the effective relation for linkType.
func (c *Coordinator) Relation(linkType string) Relation {
	return c.relations[linkType]
}

// ---------------------------------------------------------------- courses

// CreateCourse creates a course taught by the acting agent and lists it in the
// catalog. It returns the course anchor address.
func (c *Coordinator) CreateCourse(ctx context.Context, title string, timestamp uint64) (types.Address, error) {
	courseAnchor, initial := c.newCourse(title, timestamp)
	anchorAddr, _, err := c.courses.Create(ctx, courseAnchor, initial)
	return anchorAddr, c.finishCreate(err, func() error { return c.listCourse(ctx, anchorAddr) })
}

// CreateCourseOnce is CreateCourse keyed by requestID; a retry resumes a
// partially created course instead of creating another one.
func (c *Coordinator) CreateCourseOnce(ctx context.Context, requestID, title string, timestamp uint64) (types.Address, error) {
	courseAnchor, initial := c.newCourse(title, timestamp)
	anchorAddr, _, err := c.courses.CreateOnce(ctx, requestID, courseAnchor, initial)
	return anchorAddr, c.finishCreate(err, func() error { return c.listCourse(ctx, anchorAddr) })
}

func (c *Coordinator) newCourse(title string, timestamp uint64) (CourseAnchor, func(types.Address) Course) {
	courseAnchor := CourseAnchor{Title: title, TeacherAddress: c.agent, Timestamp: timestamp}
	return courseAnchor, func(anchorAddr types.Address) Course {
		return Course{
			Title:          title,
			TeacherAddress: c.agent,
			Timestamp:      timestamp,
			AnchorAddress:  anchorAddr,
		}
	}
}

func (c *Coordinator) listCourse(ctx context.Context, anchorAddr types.Address) error {
	if err := c.ensureLink(ctx, c.catalog, CatalogCoursesLink, anchorAddr); err != nil {
		return err
	}
	if err := c.ensureLink(ctx, c.agent, TeacherCoursesLink, anchorAddr); err != nil {
		return err
	}
	c.log.WithField("course", anchorAddr.String()).Debug("course created")
	return nil
}

// GetLatestCourse returns the current version of a course. ok is false if the
// course was deleted or never existed.
func (c *Coordinator) GetLatestCourse(ctx context.Context, courseAnchor types.Address) (anchor.Version[Course], bool, error) {
	return c.courses.Latest(ctx, courseAnchor)
}

// GetCourseAnchor returns the identity record of a course.
func (c *Coordinator) GetCourseAnchor(ctx context.Context, courseAnchor types.Address) (CourseAnchor, bool, error) {
	return c.courses.Anchor(ctx, courseAnchor)
}

// UpdateCourse replaces title and section list of a course. It returns the
// unchanged anchor address.
func (c *Coordinator) UpdateCourse(ctx context.Context, title string, sections []types.Address, courseAnchor types.Address) (types.Address, error) {
	addr, err := c.courses.Update(ctx, courseAnchor, func(course Course) (Course, error) {
		course.Title = title
		course.Sections = sections
		return course, nil
	})
	if errors.Is(err, anchor.ErrDeleted) {
		return types.Address{}, fmt.Errorf("cannot update a deleted course: %w: %w", ErrCourseDeleted, err)
	}
	return addr, err
}

// DeleteCourse tombstones the course anchor and applies the relation policies:
// sections are deleted along with it and the course leaves the catalog and the
// teacher's list. Enrollments stay.
func (c *Coordinator) DeleteCourse(ctx context.Context, courseAnchor types.Address) (types.Address, error) {
	ca, ok, err := c.courses.Anchor(ctx, courseAnchor)
	if err != nil {
		return types.Address{}, err
	}
	if !ok {
		return types.Address{}, fmt.Errorf("delete course %s: %w", courseAnchor.Short(), entrystore.ErrNotFound)
	}

	if _, err := c.courses.Delete(ctx, courseAnchor); err != nil {
		return types.Address{}, err
	}

	if c.relations[CourseSectionsLink].OnParentDelete == Cascade {
		sections, err := c.links.Query(ctx, courseAnchor, CourseSectionsLink, linkindex.AnyTag())
		if err != nil {
			return courseAnchor, err
		}
		for _, s := range sections {
			if _, err := c.DeleteSection(ctx, s); err != nil && !errors.Is(err, entrystore.ErrNotFound) {
				return courseAnchor, fmt.Errorf("cascade to section %s: %w", s.Short(), err)
			}
		}
	}

	if err := c.unlinkDeleted(ctx, c.catalog, CatalogCoursesLink, courseAnchor); err != nil {
		return courseAnchor, err
	}
	if err := c.unlinkDeleted(ctx, ca.TeacherAddress, TeacherCoursesLink, courseAnchor); err != nil {
		return courseAnchor, err
	}

	c.log.WithField("course", courseAnchor.String()).Info("course deleted")
	return courseAnchor, nil
}

// CourseHistory lists the version addresses of a course, newest first.
func (c *Coordinator) CourseHistory(ctx context.Context, courseAnchor types.Address) ([]types.Address, error) {
	return c.courses.History(ctx, courseAnchor)
}

// RepairCourse removes extra latest links left by racing updates.
func (c *Coordinator) RepairCourse(ctx context.Context, courseAnchor types.Address) (int, error) {
	return c.courses.Repair(ctx, courseAnchor)
}

// GetAllCourses lists every live course in the catalog.
func (c *Coordinator) GetAllCourses(ctx context.Context) ([]types.Address, error) {
	return c.liveTargets(ctx, c.catalog, CatalogCoursesLink)
}

// GetMyCourses lists the live courses taught by the acting agent.
func (c *Coordinator) GetMyCourses(ctx context.Context) ([]types.Address, error) {
	return c.liveTargets(ctx, c.agent, TeacherCoursesLink)
}

// ListSections lists the live sections created in a course.
func (c *Coordinator) ListSections(ctx context.Context, courseAnchor types.Address) ([]types.Address, error) {
	return c.liveTargets(ctx, courseAnchor, CourseSectionsLink)
}

// ------------------------------------------------------------- enrollment

// EnrollInCourse enrolls the acting agent as a student. Enrolling twice is a
// no-op.
func (c *Coordinator) EnrollInCourse(ctx context.Context, courseAnchor types.Address) error {
	if _, ok, err := c.courses.Latest(ctx, courseAnchor); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("cannot enroll in deleted course: %w", ErrCourseDeleted)
	}
	if err := c.ensureLink(ctx, courseAnchor, CourseStudentsLink, c.agent); err != nil {
		return err
	}
	return c.ensureLink(ctx, c.agent, StudentCoursesLink, courseAnchor)
}

// UnenrollFromCourse removes the acting agent from a course.
func (c *Coordinator) UnenrollFromCourse(ctx context.Context, courseAnchor types.Address) error {
	err := c.links.Remove(ctx, courseAnchor, CourseStudentsLink, c.agent, "")
	if errors.Is(err, linkindex.ErrLinkNotFound) {
		return fmt.Errorf("unenroll from %s: %w", courseAnchor.Short(), ErrNotEnrolled)
	}
	if err != nil {
		return err
	}
	err = c.links.Remove(ctx, c.agent, StudentCoursesLink, courseAnchor, "")
	if err != nil && !errors.Is(err, linkindex.ErrLinkNotFound) {
		return err
	}
	return nil
}

// GetMyEnrolledCourses lists the live courses the acting agent is enrolled in.
func (c *Coordinator) GetMyEnrolledCourses(ctx context.Context) ([]types.Address, error) {
	return c.liveTargets(ctx, c.agent, StudentCoursesLink)
}

// GetStudents lists the agents enrolled in a course.
func (c *Coordinator) GetStudents(ctx context.Context, courseAnchor types.Address) ([]types.Address, error) {
	return c.links.Query(ctx, courseAnchor, CourseStudentsLink, linkindex.AnyTag())
}

// --------------------------------------------------------------- sections

// CreateSection creates a section in a live course and returns its anchor
// address. Nothing is committed when the course is deleted.
func (c *Coordinator) CreateSection(ctx context.Context, title string, courseAnchor types.Address, timestamp uint64) (types.Address, error) {
	if err := c.requireCourse(ctx, courseAnchor); err != nil {
		return types.Address{}, err
	}
	sectionAnchor, initial := newSection(title, courseAnchor, timestamp)
	anchorAddr, _, err := c.sections.Create(ctx, sectionAnchor, initial)
	return anchorAddr, c.finishCreate(err, func() error { return c.linkSection(ctx, courseAnchor, anchorAddr) })
}

// CreateSectionOnce is CreateSection keyed by requestID; a retry resumes a
// partially created section instead of creating another one.
func (c *Coordinator) CreateSectionOnce(ctx context.Context, requestID, title string, courseAnchor types.Address, timestamp uint64) (types.Address, error) {
	if err := c.requireCourse(ctx, courseAnchor); err != nil {
		return types.Address{}, err
	}
	sectionAnchor, initial := newSection(title, courseAnchor, timestamp)
	anchorAddr, _, err := c.sections.CreateOnce(ctx, requestID, sectionAnchor, initial)
	return anchorAddr, c.finishCreate(err, func() error { return c.linkSection(ctx, courseAnchor, anchorAddr) })
}

func (c *Coordinator) requireCourse(ctx context.Context, courseAnchor types.Address) error {
	if _, ok, err := c.courses.Latest(ctx, courseAnchor); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("cannot create section in deleted course: %w", ErrCourseDeleted)
	}
	return nil
}

func newSection(title string, courseAnchor types.Address, timestamp uint64) (SectionAnchor, func(types.Address) Section) {
	sectionAnchor := SectionAnchor{Title: title, CourseAddress: courseAnchor, Timestamp: timestamp}
	return sectionAnchor, func(anchorAddr types.Address) Section {
		return Section{Title: title, Timestamp: timestamp, AnchorAddress: anchorAddr}
	}
}

func (c *Coordinator) linkSection(ctx context.Context, courseAnchor, sectionAnchor types.Address) error {
	if err := c.ensureLink(ctx, courseAnchor, CourseSectionsLink, sectionAnchor); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{
		"course":  courseAnchor.String(),
		"section": sectionAnchor.String(),
	}).Debug("section created")
	return nil
}

// GetLatestSection returns the current version of a section. ok is false if
// the section was deleted or never existed.
func (c *Coordinator) GetLatestSection(ctx context.Context, sectionAnchor types.Address) (anchor.Version[Section], bool, error) {
	return c.sections.Latest(ctx, sectionAnchor)
}

// GetSectionAnchor returns the identity record of a section.
func (c *Coordinator) GetSectionAnchor(ctx context.Context, sectionAnchor types.Address) (SectionAnchor, bool, error) {
	return c.sections.Anchor(ctx, sectionAnchor)
}

// UpdateSection changes the title of a section and returns its unchanged
// anchor address.
func (c *Coordinator) UpdateSection(ctx context.Context, title string, sectionAnchor types.Address) (types.Address, error) {
	addr, err := c.sections.Update(ctx, sectionAnchor, func(s Section) (Section, error) {
		s.Title = title
		return s, nil
	})
	if errors.Is(err, anchor.ErrDeleted) {
		return types.Address{}, fmt.Errorf("cannot update a deleted section: %w: %w", ErrSectionDeleted, err)
	}
	return addr, err
}

// DeleteSection tombstones the section anchor and removes it from its course.
// Content linked from the section is kept unless the section -> content
// relation is configured to cascade.
func (c *Coordinator) DeleteSection(ctx context.Context, sectionAnchor types.Address) (types.Address, error) {
	sa, ok, err := c.sections.Anchor(ctx, sectionAnchor)
	if err != nil {
		return types.Address{}, err
	}
	if !ok {
		return types.Address{}, fmt.Errorf("delete section %s: %w", sectionAnchor.Short(), entrystore.ErrNotFound)
	}

	if _, err := c.sections.Delete(ctx, sectionAnchor); err != nil {
		return types.Address{}, err
	}

	if c.relations[SectionContentsLink].OnParentDelete == Cascade {
		contents, err := c.links.Query(ctx, sectionAnchor, SectionContentsLink, linkindex.AnyTag())
		if err != nil {
			return sectionAnchor, err
		}
		for _, k := range contents {
			if err := c.store.Tombstone(ctx, k); err != nil && !errors.Is(err, entrystore.ErrNotFound) {
				return sectionAnchor, fmt.Errorf("cascade to content %s: %w", k.Short(), err)
			}
		}
	}

	if err := c.unlinkDeleted(ctx, sa.CourseAddress, CourseSectionsLink, sectionAnchor); err != nil {
		return sectionAnchor, err
	}

	c.log.WithField("section", sectionAnchor.String()).Debug("section deleted")
	return sectionAnchor, nil
}

// SectionHistory lists the version addresses of a section, newest first.
func (c *Coordinator) SectionHistory(ctx context.Context, sectionAnchor types.Address) ([]types.Address, error) {
	return c.sections.History(ctx, sectionAnchor)
}

// RepairSection removes extra latest links left by racing updates.
func (c *Coordinator) RepairSection(ctx context.Context, sectionAnchor types.Address) (int, error) {
	return c.sections.Repair(ctx, sectionAnchor)
}

// ---------------------------------------------------------------- content

// CreateContent commits a content entry and links it from a live section. It
// returns the content address.
func (c *Coordinator) CreateContent(ctx context.Context, name, url, description string, timestamp uint64, sectionAnchor types.Address) (types.Address, error) {
	if _, ok, err := c.sections.Latest(ctx, sectionAnchor); err != nil {
		return types.Address{}, err
	} else if !ok {
		return types.Address{}, fmt.Errorf("cannot create content in deleted section: %w", ErrSectionDeleted)
	}

	addr, err := c.store.Commit(ctx, Content{Name: name, URL: url, Description: description, Timestamp: timestamp})
	if err != nil {
		return types.Address{}, err
	}
	if _, err := c.links.Add(ctx, sectionAnchor, SectionContentsLink, addr, ""); err != nil {
		return addr, err
	}

	c.log.WithFields(logrus.Fields{
		"section": sectionAnchor.String(),
		"content": addr.String(),
	}).Debug("content created")
	return addr, nil
}

// GetContents lists the content linked from a section, as stored. Targets are
// not checked for liveness.
func (c *Coordinator) GetContents(ctx context.Context, sectionAnchor types.Address) ([]types.Address, error) {
	return c.links.Query(ctx, sectionAnchor, SectionContentsLink, linkindex.AnyTag())
}

// GetContent fetches a content entry by address.
func (c *Coordinator) GetContent(ctx context.Context, contentAddr types.Address) (Content, error) {
	return entrystore.FetchAs[Content](ctx, c.store, contentAddr)
}

// UpdateContent commits the edited content as a successor of contentAddr and
// moves this section's edge to it. Other sections keep pointing at the old
// address. It returns the new content address.
func (c *Coordinator) UpdateContent(ctx context.Context, contentAddr types.Address, name, url, description string, sectionAnchor types.Address) (types.Address, error) {
	content, err := c.GetContent(ctx, contentAddr)
	if err != nil {
		return types.Address{}, err
	}
	content.Name = name
	content.URL = url
	content.Description = description

	newAddr, err := c.store.Update(ctx, contentAddr, content)
	if err != nil {
		return types.Address{}, err
	}
	if newAddr == contentAddr {
		return newAddr, nil
	}

	if _, err := c.links.Swap(ctx, sectionAnchor, SectionContentsLink, contentAddr, newAddr, ""); err != nil {
		return types.Address{}, err
	}

	c.log.WithFields(logrus.Fields{
		"section": sectionAnchor.String(),
		"old":     contentAddr.String(),
		"new":     newAddr.String(),
	}).Debug("content updated")
	return newAddr, nil
}

// DeleteContent removes one section -> content edge. The content entry stays
// and may still be linked from other sections.
func (c *Coordinator) DeleteContent(ctx context.Context, contentAddr, sectionAnchor types.Address) (types.Address, error) {
	if err := c.links.Remove(ctx, sectionAnchor, SectionContentsLink, contentAddr, ""); err != nil {
		return types.Address{}, err
	}
	return contentAddr, nil
}

// ---------------------------------------------------------------- helpers

// finishCreate runs the parent linking step after an engine create. An
// existing anchor still gets its parent links, so repeating a create that
// failed while linking completes it; the ErrAnchorExists is returned as is.
func (c *Coordinator) finishCreate(createErr error, link func() error) error {
	if createErr != nil && !errors.Is(createErr, anchor.ErrAnchorExists) {
		return createErr
	}
	if err := link(); err != nil {
		return err
	}
	return createErr
}

// ensureLink adds base -> target unless a live edge already exists.
func (c *Coordinator) ensureLink(ctx context.Context, base types.Address, linkType string, target types.Address) error {
	targets, err := c.links.Query(ctx, base, linkType, linkindex.AnyTag())
	if err != nil {
		return err
	}
	if types.Addresses(targets).Contains(target) {
		return nil
	}
	_, err = c.links.Add(ctx, base, linkType, target, "")
	return err
}

// unlinkDeleted removes every base -> target edge if the relation asks for it.
func (c *Coordinator) unlinkDeleted(ctx context.Context, base types.Address, linkType string, target types.Address) error {
	if !c.relations[linkType].UnlinkDeleted {
		return nil
	}
	for {
		err := c.links.Remove(ctx, base, linkType, target, "")
		if errors.Is(err, linkindex.ErrLinkNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// liveTargets returns the targets of base -> linkType that are still live.
func (c *Coordinator) liveTargets(ctx context.Context, base types.Address, linkType string) ([]types.Address, error) {
	targets, err := c.links.Query(ctx, base, linkType, linkindex.AnyTag())
	if err != nil {
		return nil, err
	}
	live := make([]types.Address, 0, len(targets))
	for _, t := range targets {
		ok, err := c.store.Exists(ctx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			live = append(live, t)
		}
	}
	return live, nil
}
