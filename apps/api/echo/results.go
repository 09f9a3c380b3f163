package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/result"
)

type resultAPI struct {
	svc       *result.Service
	logger    core.Logger
	maxUpload int64
}

func registerResultAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *result.Service, logger core.Logger, maxUpload int64) {
	api := resultAPI{svc: svc, logger: logger, maxUpload: maxUpload}

	rg := g.Group("/results", auth, adminMiddleware())
	rg.POST("/bulk", api.bulkCreate)
	rg.GET("/release", api.getRelease)
	rg.GET("/:examinationNo", api.retrieve)
}

func (api *resultAPI) bulkCreate(ctx echo.Context) error {
	tbl, err := readUpload(ctx, api.maxUpload)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	return respondImport(ctx, api.logger, func(sink ingest.Sink) (ingest.Summary, error) {
		return api.svc.Import(reqCtx, tbl, sink)
	})
}

type releaseResponse struct {
	Released bool `json:"released"`
	Set      bool `json:"set"`
}

func (api *resultAPI) getRelease(ctx echo.Context) error {
	released, set, err := api.svc.Released(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "reading release setting")
	}
	return ctx.JSON(http.StatusOK, releaseResponse{Released: released, Set: set})
}

func (api *resultAPI) retrieve(ctx echo.Context) error {
	res, err := api.svc.GetByExaminationNo(ctx.Request().Context(), ctx.Param("examinationNo"))
	if err != nil {
		if errors.Cause(err) == result.ErrNotFound {
			return errNotFound
		}
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}
