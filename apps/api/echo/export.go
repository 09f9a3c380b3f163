package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/ingest"
)

type exportAPI struct {
	streamer *export.Streamer
	logger   core.Logger
}

func registerExportAPI(g *echo.Group, auth echo.MiddlewareFunc, streamer *export.Streamer, logger core.Logger) {
	api := exportAPI{streamer: streamer, logger: logger}

	sg := g.Group("/students", auth, adminMiddleware())
	sg.GET("/export", api.stream)
	sg.GET("/export-chunk", api.chunk)
}

func (api *exportAPI) stream(ctx echo.Context) error {
	var q exportQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}

	// headers go out with the first written row
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.Filename(time.Now())))

	n, err := api.streamer.Stream(ctx.Request().Context(), res, f)
	if err == nil {
		return nil
	}
	if !res.Committed {
		res.Header().Del(echo.HeaderContentType)
		res.Header().Del(echo.HeaderContentDisposition)
		return errors.Wrap(err, "streaming export")
	}
	if ingest.IsConsumerGone(err) || ctx.Request().Context().Err() != nil {
		api.logger.Info("export: client disconnected", map[string]interface{}{"rows": n}, contextPerson(ctx))
	} else {
		api.logger.Error("export aborted", err, map[string]interface{}{"rows": n}, contextPerson(ctx))
	}
	return nil
}

func (api *exportAPI) chunk(ctx echo.Context) error {
	var q exportQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}
	f, err := q.Filter()
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	if q.CountOnly {
		counts, err := api.streamer.Count(reqCtx, f)
		if err != nil {
			return errors.Wrap(err, "counting export")
		}
		return ctx.JSON(http.StatusOK, counts)
	}

	table, err := q.ParseTable()
	if err != nil {
		return err
	}
	chunk, err := api.streamer.Chunk(reqCtx, table, f, q.Cursor)
	if err != nil {
		return errors.Wrap(err, "fetching export chunk")
	}
	return ctx.JSON(http.StatusOK, chunk)
}
