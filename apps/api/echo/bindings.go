package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
)

// exportQuery holds the query parameters shared by the export endpoints.
type exportQuery struct {
	Search           string `query:"search"`
	LGA              string `query:"lga"`
	SchoolCode       string `query:"schoolCode"`
	RegistrationType string `query:"registrationType"`
	CountOnly        bool   `query:"countOnly"`
	Table            string `query:"table"`
	Cursor           string `query:"cursor"`
}

func (q *exportQuery) Bind(ctx echo.Context) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, q); err != nil {
		return core.NewValidationError(err)
	}
	return nil
}

func (q exportQuery) Filter() (export.Filter, error) {
	f, err := export.NewFilter(q.Search, q.LGA, q.SchoolCode, q.RegistrationType)
	if err != nil {
		return export.Filter{}, core.NewValidationError(err, core.FieldError{Field: "registrationType", Error: err.Error()})
	}
	return f, nil
}

func (q exportQuery) ParseTable() (export.Table, error) {
	t, err := export.ParseTable(q.Table)
	if err != nil {
		return "", core.NewValidationError(err, core.FieldError{Field: "table", Error: err.Error()})
	}
	return t, nil
}
