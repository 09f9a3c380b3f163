package registration

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/ingest"
)

const (
	DefaultYear = "2025/2026"
	DefaultPrcd = 1

	ReligionChristian = "Christian"
	ReligionIslam     = "Islam"

	SchoolTypePublic  = "public"
	SchoolTypePrivate = "private"
)

// Subjects lists the CA subjects in export column order. Each has three yearly columns, e.g. ENGY1..ENGY3.
var Subjects = []string{"ARB", "BST", "BUS", "CCA", "ENG", "FRE", "HST", "LLG", "MTH", "NVS", "PVS", "RGS", "TEC"}

const missingFieldsMsg = "Missing required fields (Reg. No, or name)"

// Table is a physical registrations table.
type Table string

const (
	TableStudent Table = "student_registration"
	TablePost    Table = "post_registration"
)

// Partition is the logical slice of registrations an upload targets.
type Partition string

const (
	PartitionRegular Partition = "regular"
	PartitionLate    Partition = "late"
	PartitionPost    Partition = "post"
)

var ErrInvalidPartition = errors.New("registration type must be one of regular, late, post")

// ParsePartition defaults to regular.
func ParsePartition(s string) (Partition, error) {
	switch p := Partition(core.CleanString(s, true)); p {
	case "":
		return PartitionRegular, nil
	case PartitionRegular, PartitionLate, PartitionPost:
		return p, nil
	default:
		return "", ErrInvalidPartition
	}
}

func (p Partition) Table() Table {
	if p == PartitionPost {
		return TablePost
	}
	return TableStudent
}

// Late reports whether rows of p carry the late-registration flag.
func (p Partition) Late() bool {
	return p == PartitionLate
}

// Scope is the set of rows an override upload replaces: one school's partition.
type Scope struct {
	SchoolID  string
	Partition Partition
}

type (
	TermScores struct {
		Subject string `json:"subject"`
		Year1   string `json:"year1" validate:"cascore"`
		Year2   string `json:"year2" validate:"cascore"`
		Year3   string `json:"year3" validate:"cascore"`
	}

	// CAScores is stored as a JSON document.
	CAScores []TermScores

	Registration struct {
		ID            string    `json:"id" db:"id"`
		SchoolID      string    `json:"schoolId" db:"school_id"`
		StudentNumber string    `json:"studentNumber" db:"student_number" validate:"required"`
		AccCode       string    `json:"accCode" db:"acc_code"`
		FirstName     string    `json:"firstName" db:"first_name" validate:"required_without=LastName"`
		OtherName     string    `json:"otherName" db:"other_name"`
		LastName      string    `json:"lastName" db:"last_name"`
		DateOfBirth   null.Time `json:"dateOfBirth" db:"date_of_birth"`
		Gender        string    `json:"gender" db:"gender"`
		SchoolType    string    `json:"schoolType" db:"school_type"`
		ReligiousType string    `json:"religiousType" db:"religious_type"`
		CAScores      CAScores  `json:"caScores" db:"ca_scores" validate:"dive"`
		Year          string    `json:"year" db:"year"`
		Prcd          int       `json:"prcd" db:"prcd"`
		Late          bool      `json:"lateRegistration" db:"late_registration"`
		CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	}
)

var _ ingest.Record = Registration{}

func (r Registration) NaturalKey() string {
	return r.StudentNumber
}

func (r Registration) Reject(fe validator.FieldError) ingest.Rejection {
	if fe.Tag() == core.CAScoreTag {
		subject := "?"
		if i, err := strconv.Atoi(core.MapKeyFromNamespace(fe.Namespace())); err == nil && i < len(r.CAScores) {
			subject = r.CAScores[i].Subject
		}
		year := strings.TrimPrefix(fe.Field(), "year")
		return ingest.Rejection{
			Reason:  ingest.ReasonScoreOutOfRange,
			Message: fmt.Sprintf("Invalid CA score for %s Year %s. Must be between 1-100.", subject, year),
		}
	}
	return ingest.Rejection{Reason: ingest.ReasonMissingRequiredField, Message: missingFieldsMsg}
}

func (r Registration) DuplicateMessage() string {
	return fmt.Sprintf("Student number %s already exists", r.StudentNumber)
}

// Get returns the scores of a subject.
func (s CAScores) Get(subject string) (TermScores, bool) {
	for _, ts := range s {
		if ts.Subject == subject {
			return ts, true
		}
	}
	return TermScores{}, false
}

func (s CAScores) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *CAScores) Scan(src interface{}) error {
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
		return errors.Errorf("registration.CAScores: cannot scan %T", src)
	}
	return json.Unmarshal(raw, s)
}
