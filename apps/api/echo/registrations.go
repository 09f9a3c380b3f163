package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/registration"
)

type registrationAPI struct {
	svc       *registration.Service
	logger    core.Logger
	maxUpload int64
}

func registerRegistrationAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *registration.Service, logger core.Logger, maxUpload int64) {
	api := registrationAPI{svc: svc, logger: logger, maxUpload: maxUpload}

	rg := g.Group("/registrations", auth)
	rg.POST("/bulk", api.bulkCreate)
}

// importRequest resolves the target school from the caller: school users upload into their own school,
// admins name one with the schoolId form field.
func (api *registrationAPI) importRequest(ctx echo.Context) (registration.ImportRequest, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return registration.ImportRequest{}, errors.Wrap(err, "getting context claims")
	}

	var req registration.ImportRequest
	switch {
	case claims.SchoolID != "":
		req.SchoolID = claims.SchoolID
	case claims.IsAdmin:
		req.SchoolID = strings.TrimSpace(ctx.FormValue("schoolId"))
		if req.SchoolID == "" {
			return req, core.NewValidationError(nil, core.FieldError{Field: "schoolId", Error: "schoolId is a required field"})
		}
	default:
		return req, errForbidden
	}

	if req.Partition, err = registration.ParsePartition(ctx.FormValue("registrationType")); err != nil {
		return req, core.NewValidationError(err, core.FieldError{Field: "registrationType", Error: err.Error()})
	}
	req.Override, _ = strconv.ParseBool(strings.TrimSpace(ctx.FormValue("override")))
	return req, nil
}

func (api *registrationAPI) bulkCreate(ctx echo.Context) error {
	tbl, err := readUpload(ctx, api.maxUpload)
	if err != nil {
		return err
	}
	req, err := api.importRequest(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	return respondImport(ctx, api.logger, func(sink ingest.Sink) (ingest.Summary, error) {
		return api.svc.Import(reqCtx, req, tbl, sink)
	})
}
