package registration

import (
	"github.com/trezcool/examreg/core"
)

// Student is a registration joined with its owning school, as read back for exports.
type Student struct {
	Registration
	SchoolCode    string `json:"schoolCode" db:"school_code"`
	SchoolLGACode string `json:"schoolLgaCode" db:"school_lga_code"`
}

// Exportable is a stored registration tagged with the partition it was read from.
type Exportable interface {
	Partition() Partition
	Record() Student
}

type (
	RegularRegistration struct{ Student }
	LateRegistration    struct{ Student }
	PostRegistration    struct{ Student }
)

func (RegularRegistration) Partition() Partition { return PartitionRegular }
func (LateRegistration) Partition() Partition    { return PartitionLate }
func (PostRegistration) Partition() Partition    { return PartitionPost }

func (r RegularRegistration) Record() Student { return r.Student }
func (r LateRegistration) Record() Student    { return r.Student }
func (r PostRegistration) Record() Student    { return r.Student }

// Tag wraps s in the variant of partition p.
func Tag(p Partition, s Student) Exportable {
	switch p {
	case PartitionLate:
		return LateRegistration{s}
	case PartitionPost:
		return PostRegistration{s}
	default:
		return RegularRegistration{s}
	}
}

// Filter narrows exported registrations. Empty fields match everything.
type Filter struct {
	Search     string // case-insensitive substring of first name, last name or student number
	LGACode    string // owning school's LGA code
	SchoolCode string // owning school's code
}

// NewFilter trims the values and treats "all" as no filter.
func NewFilter(search, lgaCode, schoolCode string) Filter {
	return Filter{
		Search:     core.CleanString(search),
		LGACode:    allAsEmpty(lgaCode),
		SchoolCode: allAsEmpty(schoolCode),
	}
}

func allAsEmpty(s string) string {
	s = core.CleanString(s)
	if s == "all" {
		return ""
	}
	return s
}

// ReligionCode maps a stored religious type back to its CSV code.
func ReligionCode(religiousType string) string {
	switch core.CleanString(religiousType, true) {
	case "christian":
		return "1"
	case "islam":
		return "2"
	}
	return ""
}

// SchoolTypeCode maps a stored school type back to its CSV code.
func SchoolTypeCode(schoolType string) string {
	if core.CleanString(schoolType, true) == SchoolTypePrivate {
		return "1"
	}
	return "0"
}
