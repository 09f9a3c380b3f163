package echoapi

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
	"github.com/trezcool/examreg/core/ingest"
)

const (
	uploadField = "file"

	msgNoFile = "No file uploaded"
	msgNotCSV = "Only CSV files are accepted"
	msgNoData = "No valid data found in CSV"
)

var errUploadTooLarge = echo.NewHTTPError(http.StatusRequestEntityTooLarge, "uploaded file is too large")

// readUpload parses the multipart CSV upload into a table holding at least one data row.
func readUpload(ctx echo.Context, maxSize int64) (*csvio.Table, error) {
	req := ctx.Request()
	if maxSize > 0 {
		req.Body = http.MaxBytesReader(ctx.Response(), req.Body, maxSize)
	}

	fh, err := ctx.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errUploadTooLarge
		}
		return nil, core.NewInputFormatError(msgNoFile)
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		return nil, core.NewInputFormatError(msgNotCSV)
	}

	file, err := fh.Open()
	if err != nil {
		return nil, errors.Wrap(err, "opening upload")
	}
	defer func() { _ = file.Close() }()

	tbl, err := csvio.Parse(file)
	if err != nil {
		if errors.Cause(err) == csvio.ErrEmptyOrInvalidInput {
			return nil, core.NewInputFormatError(msgNoData)
		}
		return nil, err
	}
	if len(tbl.Rows) == 0 {
		return nil, core.NewInputFormatError(msgNoData)
	}
	return tbl, nil
}

// importFunc runs one upload, reporting progress to sink (nil when buffered).
type importFunc func(sink ingest.Sink) (ingest.Summary, error)

// respondImport answers with a 201 summary, or with an SSE progress stream when the client asks for one.
func respondImport(ctx echo.Context, logger core.Logger, run importFunc) error {
	if !wantsEventStream(ctx) {
		summary, err := run(nil)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusCreated, summary)
	}

	sink := newSSESink(ctx.Response())
	_, err := run(sink)
	switch {
	case err == nil:
		return nil
	case ingest.IsConsumerGone(err):
		logger.Info("upload: client disconnected", err, contextPerson(ctx))
		return nil
	case !sink.started:
		return err
	}

	// the stream is open: the failure becomes the terminal event
	msg := "Upload failed, nothing more was saved."
	switch {
	case errors.Cause(err) == core.ErrTransactionTimeout:
		msg = "Database transaction timed out, nothing was saved. Please retry with a smaller file."
		logger.Warn("upload: "+msg, err, contextPerson(ctx))
	case core.IsInputFormatError(err):
		msg = err.Error()
		logger.Info("upload: "+msg, contextPerson(ctx))
	default:
		logger.Error("upload failed", err, contextPerson(ctx))
	}
	_ = sink.Send(ingest.Event{
		Phase:    ingest.PhaseComplete,
		Progress: 100,
		Message:  msg,
		Error:    msg,
		Summary:  &ingest.Summary{Success: false, Message: msg, Errors: []ingest.RowRejection{}},
	})
	return nil
}
