package school

import (
	"time"
)

const (
	TypePublic  = "public"
	TypePrivate = "private"

	// DefaultLCode fills school_data rows whose region code is unknown.
	DefaultLCode = "NULL"
)

// School owns registrations.
type School struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	LGACode   string    `json:"lgaCode" db:"lga_code"`
	Type      string    `json:"type" db:"school_type"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type NewSchool struct {
	Name    string `json:"name" validate:"required"`
	Code    string `json:"code" validate:"required"`
	LGACode string `json:"lgaCode" validate:"required"`
	Type    string `json:"type" validate:"omitempty,oneof=public private"`
}

// Data is one entry of the school reference dataset.
type Data struct {
	ID      string `json:"id" db:"id"`
	LGACode string `json:"lgaCode" db:"lga_code"`
	LCode   string `json:"lCode" db:"l_code"`
	SchCode string `json:"schCode" db:"sch_code"`
	ProgID  string `json:"progID" db:"prog_id"`
	SchName string `json:"schName" db:"sch_name"`
}
