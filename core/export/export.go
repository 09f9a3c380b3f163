// Package export streams registrations back out as CSV, either in one response or as cursor-addressed chunks.
package export

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/school"
)

// ProgID is the programme identifier written on every exported row.
const ProgID = "2"

// Table names an exportable slice of registrations, in export order.
type Table string

const (
	TableRegular Table = "studentRegistration-regular"
	TableLate    Table = "studentRegistration-late"
	TablePost    Table = "postRegistration"
)

var Tables = []Table{TableRegular, TableLate, TablePost}

var (
	ErrInvalidTable            = errors.New("table must be one of studentRegistration-regular, studentRegistration-late, postRegistration")
	ErrInvalidRegistrationType = errors.New("registrationType must be one of regular, late, post, all")
)

func ParseTable(s string) (Table, error) {
	for _, t := range Tables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", ErrInvalidTable
}

func (t Table) Partition() registration.Partition {
	switch t {
	case TableLate:
		return registration.PartitionLate
	case TablePost:
		return registration.PartitionPost
	default:
		return registration.PartitionRegular
	}
}

// Filter is a registration filter plus the registration type selecting tables.
type Filter struct {
	registration.Filter
	tables []Table
}

// NewFilter validates the registration type; "" and "all" select every table.
func NewFilter(search, lga, schoolCode, registrationType string) (Filter, error) {
	f := Filter{Filter: registration.NewFilter(search, lga, schoolCode)}
	switch core.CleanString(registrationType, true) {
	case "", "all":
		f.tables = Tables
	case string(registration.PartitionRegular):
		f.tables = []Table{TableRegular}
	case string(registration.PartitionLate):
		f.tables = []Table{TableLate}
	case string(registration.PartitionPost):
		f.tables = []Table{TablePost}
	default:
		return Filter{}, ErrInvalidRegistrationType
	}
	return f, nil
}

// Tables returns the tables selected by the filter, in export order.
func (f Filter) Tables() []Table {
	if f.tables == nil {
		return Tables
	}
	return f.tables
}

// CodeMap resolves "<regionCode>-<schCode>" and "<lgaCode>-<schCode>" keys to canonical LGA codes.
type CodeMap map[string]string

// BuildCodeMap merges persisted reference entries with the bundled dataset. Persisted entries win.
func BuildCodeMap(persisted, bundled []school.Data) CodeMap {
	m := make(CodeMap, 2*(len(persisted)+len(bundled)))
	for _, d := range persisted {
		m[d.LCode+"-"+d.SchCode] = d.LGACode
		m[d.LGACode+"-"+d.SchCode] = d.LGACode
	}
	for _, d := range bundled {
		if d.LGACode == "" {
			continue
		}
		for _, key := range []string{d.LCode + "-" + d.SchCode, d.LGACode + "-" + d.SchCode} {
			if _, ok := m[key]; !ok {
				m[key] = d.LGACode
			}
		}
	}
	return m
}

// Resolve tries the raw school code, then the code without leading zeros. Unknown pairs resolve to "".
func (m CodeMap) Resolve(lgaCode, schCode string) string {
	if v := m[lgaCode+"-"+schCode]; v != "" {
		return v
	}
	trimmed := strings.TrimLeft(schCode, "0")
	if trimmed == "" {
		trimmed = schCode
	}
	return m[lgaCode+"-"+trimmed]
}

// Header returns the CSV header, with or without the leading S/N column.
func Header(withSerial bool) []string {
	h := make([]string, 0, 15+3*len(registration.Subjects))
	if withSerial {
		h = append(h, "S/N")
	}
	h = append(h, "school_session", "progID", "Reg. No", "ACCESSCODE", "Surename", "Other Name(s)", "First Name", "Gender")
	for _, subj := range registration.Subjects {
		h = append(h, subj+"Y1", subj+"Y2", subj+"Y3")
	}
	return append(h, "rgsType", "schType", "schcode", "lgacode", "DATE OF BIRTH")
}

// Row renders one student without the S/N column.
func Row(s registration.Student, codes CodeMap) []string {
	row := make([]string, 0, 14+3*len(registration.Subjects))
	row = append(row, s.Year, ProgID, s.StudentNumber, s.AccCode, s.LastName, s.OtherName, s.FirstName, s.Gender)
	for _, subj := range registration.Subjects {
		ts, _ := s.CAScores.Get(subj)
		row = append(row, ts.Year1, ts.Year2, ts.Year3)
	}
	return append(row,
		registration.ReligionCode(s.ReligiousType),
		registration.SchoolTypeCode(s.SchoolType),
		s.SchoolCode,
		codes.Resolve(s.SchoolLGACode, s.SchoolCode),
		core.FormatDate(s.DateOfBirth),
	)
}

func withSerial(n int, row []string) []string {
	return append([]string{strconv.Itoa(n)}, row...)
}
