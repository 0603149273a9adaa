package courses

import "fmt"

// Link types between anchors and entries.
const (
	CourseLatestLink    = "course_anchor->course"
	SectionLatestLink   = "section_anchor->section"
	CourseSectionsLink  = "course_anchor->section_anchor"
	SectionContentsLink = "section_anchor->content"
	CatalogCoursesLink  = "course_catalog->course_anchor"
	TeacherCoursesLink  = "teacher->courses"
	CourseStudentsLink  = "course->students"
	StudentCoursesLink  = "student->courses"
)

// Policy decides what happens to the targets of a relation when its base is
// deleted.
type Policy int

const (
	// PreserveChildren leaves targets and edges alone.
	PreserveChildren Policy = iota
	// Cascade deletes every live target too.
	Cascade
)

func (p Policy) String() string {
	switch p {
	case PreserveChildren:
		return "preserve"
	case Cascade:
		return "cascade"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Relation describes one multiset edge type of the hierarchy.
type Relation struct {
	LinkType string
	// OnParentDelete applies when the base of the edge is deleted.
	OnParentDelete Policy
	// UnlinkDeleted removes the edges pointing at a target when the target is
	// deleted.
	UnlinkDeleted bool
}

// DefaultRelations returns the relation table used unless overridden.
func DefaultRelations() map[string]Relation {
	return map[string]Relation{
		CourseSectionsLink:  {LinkType: CourseSectionsLink, OnParentDelete: Cascade, UnlinkDeleted: true},
		SectionContentsLink: {LinkType: SectionContentsLink, OnParentDelete: PreserveChildren},
		CatalogCoursesLink:  {LinkType: CatalogCoursesLink, UnlinkDeleted: true},
		TeacherCoursesLink:  {LinkType: TeacherCoursesLink, UnlinkDeleted: true},
		CourseStudentsLink:  {LinkType: CourseStudentsLink},
		StudentCoursesLink:  {LinkType: StudentCoursesLink},
	}
}
