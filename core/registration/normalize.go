package registration

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
)

// CSV column names, alternate spellings in order of preference.
var (
	colStudentNumber = []string{"Reg. No", "Reg No", "REGNO"}
	colAccCode       = []string{"ACCESSCODE", "ACCESS CODE"}
	colLastName      = []string{"Surename", "Surname"}
	colOtherName     = []string{"Other Name(s)", "Other Names"}
	colFirstName     = []string{"First Name", "Firstname"}
	colDateOfBirth   = []string{"DATE OF BIRTH", "DOB"}
)

type normalizer struct {
	schoolID  string
	partition Partition
	now       time.Time
}

func (n normalizer) normalize(row csvio.RawRow) Registration {
	accCode := row.Get(colAccCode...)
	if accCode == "" {
		accCode = NewAccessCode()
	}
	year := row.Get("school_session")
	if year == "" {
		year = DefaultYear
	}

	scores := make(CAScores, 0, len(Subjects))
	for _, subj := range Subjects {
		scores = append(scores, TermScores{
			Subject: subj,
			Year1:   scoreOrAbsent(row.Get(subj + "Y1")),
			Year2:   scoreOrAbsent(row.Get(subj + "Y2")),
			Year3:   scoreOrAbsent(row.Get(subj + "Y3")),
		})
	}

	return Registration{
		ID:            uuid.NewString(),
		SchoolID:      n.schoolID,
		StudentNumber: row.Get(colStudentNumber...),
		AccCode:       accCode,
		FirstName:     row.Get(colFirstName...),
		OtherName:     row.Get(colOtherName...),
		LastName:      row.Get(colLastName...),
		DateOfBirth:   core.ParseDate(row.Get(colDateOfBirth...)),
		Gender:        row.Get("Gender"),
		SchoolType:    schoolType(row.Get("schType")),
		ReligiousType: religion(row.Get("rgsType")),
		CAScores:      scores,
		Year:          year,
		Prcd:          DefaultPrcd,
		Late:          n.partition.Late(),
		CreatedAt:     n.now,
	}
}

// NewAccessCode generates a 10-character access code.
func NewAccessCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func scoreOrAbsent(s string) string {
	if s == "" {
		return core.ScoreAbsent
	}
	return s
}

func religion(code string) string {
	switch code {
	case "1":
		return ReligionChristian
	case "2":
		return ReligionIslam
	}
	return code
}

func schoolType(code string) string {
	switch code {
	case "1":
		return SchoolTypePrivate
	case "0":
		return SchoolTypePublic
	}
	return code
}
