package result

import (
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
	"github.com/trezcool/examreg/core/school"
)

// CSV column names, alternate spellings in order of preference.
var (
	colSessionYear   = []string{"SESSIONYR"}
	colExaminationNo = []string{"EXAMINATIONNO"}
	colSchoolCode    = []string{"SCHOOLCODE", "SCHOOLCOBE"}
	colAccessPin     = []string{"ACCESS_PIN", "ACCESS PIN"}
	colReligiousType = []string{"RGSTYPE", "rgsType"}
)

// normalizer maps raw rows to results for one upload.
type normalizer struct {
	dir     *school.Directory
	blocked bool
	now     time.Time
}

func (n normalizer) normalize(row csvio.RawRow) Result {
	examNo := row.Get(colExaminationNo...)
	schoolCode := row.Get(colSchoolCode...)
	lgaCode := row.Get("LGACD")

	accessPin := row.Get(colAccessPin...)
	if accessPin == "" {
		accessPin = "PIN-" + examNo
	}

	scores := make(Scores, 0, len(Subjects))
	for _, subj := range Subjects {
		score := row.Get(subj)
		if score == "" {
			score = core.ScoreAbsent
		}
		scores = append(scores, SubjectScore{Subject: subj, Score: score, Grade: row.Get(subj + "GRD")})
	}

	return Result{
		ID:              uuid.NewString(),
		ExaminationNo:   examNo,
		SessionYear:     row.Get(colSessionYear...),
		FirstName:       row.Get("FNAME"),
		MiddleName:      row.Get("MNAME"),
		LastName:        row.Get("LNAME"),
		DateOfBirth:     core.ParseDate(row.Get("DATEOFBIRTH")),
		Sex:             row.Get("SEXCD"),
		InstitutionCode: row.Get("INSTITUTIONCD"),
		SchoolCode:      schoolCode,
		SchoolName:      n.dir.Name(schoolCode, lgaCode),
		LGACode:         lgaCode,
		ReligiousType:   row.Get(colReligiousType...),
		Remark:          row.Get("REMARK"),
		AccessPin:       accessPin,
		Scores:          scores,
		Blocked:         n.blocked,
		CreatedAt:       n.now,
	}
}
