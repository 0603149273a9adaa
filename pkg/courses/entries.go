package courses

import "github.com/i5heu/ouroboros-courses/pkg/types"

// CourseAnchor is the permanent identity of a course. Its address is the
// course ID handed out to callers.
type CourseAnchor struct {
	Title          string        `cbor:"title" validate:"required,max=256"`
	TeacherAddress types.Address `cbor:"teacher_address"`
	Timestamp      uint64        `cbor:"timestamp"`
}

func (CourseAnchor) EntryType() string { return "course_anchor" }

// Course is one version of a course.
type Course struct {
	Title          string          `cbor:"title" validate:"required,max=256"`
	Sections       []types.Address `cbor:"sections"`
	TeacherAddress types.Address   `cbor:"teacher_address"`
	Timestamp      uint64          `cbor:"timestamp"`
	AnchorAddress  types.Address   `cbor:"anchor_address"`
}

func (Course) EntryType() string { return "course" }

// SectionAnchor is the permanent identity of a section. CourseAddress is the
// anchor of the course it was created in.
type SectionAnchor struct {
	Title         string        `cbor:"title" validate:"required,max=256"`
	CourseAddress types.Address `cbor:"anchor_address"`
	Timestamp     uint64        `cbor:"timestamp"`
}

func (SectionAnchor) EntryType() string { return "section_anchor" }

// Section is one version of a section.
type Section struct {
	Title         string        `cbor:"title" validate:"required,max=256"`
	Timestamp     uint64        `cbor:"timestamp"`
	AnchorAddress types.Address `cbor:"anchor_address"`
}

func (Section) EntryType() string { return "section" }

// Content has no anchor. Every edit produces a new address and the section
// edge is moved to it.
type Content struct {
	Name        string `cbor:"name" validate:"required,max=256"`
	URL         string `cbor:"url" validate:"omitempty,url"`
	Description string `cbor:"description" validate:"max=4096"`
	Timestamp   uint64 `cbor:"timestamp"`
}

func (Content) EntryType() string { return "content" }

// CatalogAnchor is the well-known root every course is listed under.
type CatalogAnchor struct {
	Name string `cbor:"name" validate:"required"`
}

func (CatalogAnchor) EntryType() string { return "course_catalog" }

// AgentEntry identifies the acting agent as teacher and student.
type AgentEntry struct {
	Name string `cbor:"name" validate:"required"`
}

func (AgentEntry) EntryType() string { return "agent" }
