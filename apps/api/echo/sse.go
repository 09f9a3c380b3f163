package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/examreg/core/ingest"
)

const mimeEventStream = "text/event-stream"

func wantsEventStream(ctx echo.Context) bool {
	return strings.Contains(ctx.Request().Header.Get(echo.HeaderAccept), mimeEventStream)
}

// sseSink frames progress events as server-sent events. Headers are committed with the first event,
// so errors raised before any progress still get a regular JSON response.
type sseSink struct {
	res     *echo.Response
	started bool
}

var _ ingest.Sink = (*sseSink)(nil)

func newSSESink(res *echo.Response) *sseSink {
	return &sseSink{res: res}
}

func (s *sseSink) Send(e ingest.Event) error {
	if !s.started {
		h := s.res.Header()
		h.Set(echo.HeaderContentType, mimeEventStream)
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.res.WriteHeader(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintf(s.res, "data: %s\n\n", data); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}
