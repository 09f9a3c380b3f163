package result

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/ingest"
)

// ReleaseKey names the setting gating the visibility of newly uploaded results.
const ReleaseKey = "__GLOBAL_RESULTS_RELEASE__"

// Subjects lists the examined subjects in CSV column order. Each has a score column and a <SUBJ>GRD grade column.
var Subjects = []string{"ENG", "ARIT", "MTH", "GP", "BST", "RGS", "HST", "ARB", "CCA", "FRE", "NVS", "LLG", "PVS", "BUS"}

const missingFieldsMsg = "Missing required fields (SESSIONYR, EXAMINATIONNO, or name)"

type (
	SubjectScore struct {
		Subject string `json:"subject"`
		Score   string `json:"score" validate:"examscore"`
		Grade   string `json:"grade"`
	}

	// Scores is stored as a JSON document.
	Scores []SubjectScore

	Result struct {
		ID              string    `json:"id" db:"id"`
		ExaminationNo   string    `json:"examinationNo" db:"examination_no" validate:"required"`
		SessionYear     string    `json:"sessionYear" db:"session_year" validate:"required"`
		FirstName       string    `json:"firstName" db:"first_name" validate:"required_without=LastName"`
		MiddleName      string    `json:"middleName" db:"middle_name"`
		LastName        string    `json:"lastName" db:"last_name"`
		DateOfBirth     null.Time `json:"dateOfBirth" db:"date_of_birth"`
		Sex             string    `json:"sex" db:"sex"`
		InstitutionCode string    `json:"institutionCode" db:"institution_code"`
		SchoolCode      string    `json:"schoolCode" db:"school_code"`
		SchoolName      string    `json:"schoolName" db:"school_name"`
		LGACode         string    `json:"lgaCode" db:"lga_code"`
		ReligiousType   string    `json:"religiousType" db:"religious_type"`
		Remark          string    `json:"remark" db:"remark"`
		AccessPin       string    `json:"accessPin" db:"access_pin"`
		Scores          Scores    `json:"scores" db:"scores" validate:"dive"`
		Blocked         bool      `json:"blocked" db:"blocked"`
		CreatedAt       time.Time `json:"createdAt" db:"created_at"`
	}

	Setting struct {
		Key       string    `db:"name"`
		BoolValue bool      `db:"bool_value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
)

var _ ingest.Record = Result{}

func (r Result) NaturalKey() string {
	return r.ExaminationNo
}

func (r Result) Reject(fe validator.FieldError) ingest.Rejection {
	if fe.Tag() == core.ExamScoreTag {
		subject := fe.Field()
		if i, err := strconv.Atoi(core.MapKeyFromNamespace(fe.Namespace())); err == nil && i < len(r.Scores) {
			subject = r.Scores[i].Subject
		}
		return ingest.Rejection{
			Reason:  ingest.ReasonScoreOutOfRange,
			Message: fmt.Sprintf("Invalid score for %s. Must be between 0-100.", subject),
		}
	}
	return ingest.Rejection{Reason: ingest.ReasonMissingRequiredField, Message: missingFieldsMsg}
}

func (r Result) DuplicateMessage() string {
	return fmt.Sprintf("Examination number %s already exists", r.ExaminationNo)
}

// Get returns the score of a subject.
func (s Scores) Get(subject string) (SubjectScore, bool) {
	for _, sc := range s {
		if sc.Subject == subject {
			return sc, true
		}
	}
	return SubjectScore{}, false
}

func (s Scores) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Scores) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.Errorf("result.Scores: cannot scan %T", src)
	}
	return json.Unmarshal(raw, s)
}
