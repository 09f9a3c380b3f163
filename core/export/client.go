package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/trezcool/examreg/core/csvio"
)

const (
	chunkPath    = "/v1/students/export-chunk"
	chunkRetries = 4 // 5 attempts in total
	maxBackoff   = 32 * time.Second
)

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ExportFetchError is returned once a chunk could not be fetched after every retry.
type ExportFetchError struct {
	Table    Table
	Exported int
	Total    int
	Err      error
}

func (e *ExportFetchError) Error() string {
	return fmt.Sprintf("export failed at %s after %d/%d records: %v", e.Table, e.Exported, e.Total, e.Err)
}

func (e *ExportFetchError) Unwrap() error {
	return e.Err
}

// Client drives a chunked export against a remote server and reassembles the CSV locally.
type Client struct {
	baseURL string
	token   string
	http    HTTPDoer

	// RetryBase is the first backoff delay, doubled on every retry and capped at 32s.
	RetryBase time.Duration
	// Progress, when set, is called after every chunk.
	Progress func(exported, total int)
}

func NewClient(baseURL, token string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     token,
		http:      doer,
		RetryBase: 2 * time.Second,
	}
}

// Export counts the filtered rows, then walks every table by cursor, writing a CSV numbered from 1 to w.
// It returns the number of rows written.
func (c *Client) Export(ctx context.Context, w io.Writer, f Filter) (int, error) {
	var counts CountResult
	q := c.query(f)
	q.Set("countOnly", "true")
	if err := c.get(ctx, q, &counts); err != nil {
		return 0, &ExportFetchError{Exported: 0, Total: 0, Err: errors.Wrap(err, "counting")}
	}

	cw := csvio.NewWriter(w)
	if err := cw.Write(Header(true)); err != nil {
		return 0, errors.Wrap(err, "writing header")
	}

	var exported int
	for _, tc := range counts.Tables {
		if tc.Count == 0 {
			continue
		}
		cursor := ""
		for {
			q := c.query(f)
			q.Set("table", string(tc.Table))
			if cursor != "" {
				q.Set("cursor", cursor)
			}
			var chunk ChunkResult
			if err := c.get(ctx, q, &chunk); err != nil {
				_ = cw.Flush()
				return exported, &ExportFetchError{Table: tc.Table, Exported: exported, Total: counts.TotalCount, Err: err}
			}

			for _, row := range chunk.Rows {
				exported++
				if err := cw.Write(withSerial(exported, row)); err != nil {
					return exported, errors.Wrap(err, "writing row")
				}
			}
			if err := cw.Flush(); err != nil {
				return exported, errors.Wrap(err, "writing rows")
			}
			if c.Progress != nil {
				c.Progress(exported, counts.TotalCount)
			}

			if !chunk.HasMore || chunk.NextCursor == nil {
				break
			}
			cursor = *chunk.NextCursor
		}
	}
	return exported, nil
}

func (c *Client) query(f Filter) url.Values {
	q := make(url.Values)
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.LGACode != "" {
		q.Set("lga", f.LGACode)
	}
	if f.SchoolCode != "" {
		q.Set("schoolCode", f.SchoolCode)
	}
	if tables := f.Tables(); len(tables) == 1 {
		q.Set("registrationType", string(tables[0].Partition()))
	}
	return q
}

// get fetches one JSON document, retrying transport errors and 5xx/429 responses with exponential backoff.
func (c *Client) get(ctx context.Context, q url.Values, out interface{}) error {
	backoff := retry.WithCappedDuration(maxBackoff, retry.WithMaxRetries(chunkRetries, retry.NewExponential(c.RetryBase)))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+chunkPath+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err = errors.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return retry.RetryableError(err)
			}
			return err
		}
		if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.RetryableError(errors.Wrap(err, "decoding response"))
		}
		return nil
	})
}
