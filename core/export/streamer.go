package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
	"github.com/trezcool/examreg/core/registration"
	"github.com/trezcool/examreg/core/school"
)

type (
	// Source reads stored registrations.
	Source interface {
		// FetchStudents returns up to limit rows of partition p following the row with id after
		// (from the start when after is empty), ordered by created_at DESC, id ASC.
		FetchStudents(ctx context.Context, p registration.Partition, f registration.Filter, after string, limit int) ([]registration.Exportable, error)
		CountStudents(ctx context.Context, p registration.Partition, f registration.Filter) (int, error)
	}

	// SchoolData reads the persisted school reference entries.
	SchoolData interface {
		QueryData(ctx context.Context) ([]school.Data, error)
	}

	// CodeMapCache keeps a built CodeMap across requests.
	CodeMapCache interface {
		GetCodeMap(ctx context.Context) (CodeMap, bool, error)
		SetCodeMap(ctx context.Context, m CodeMap, ttl time.Duration) error
	}

	Metrics interface {
		RowsExported(table string, n int)
	}

	Options struct {
		ChunkSize  int
		CodeMapTTL time.Duration // 0 rebuilds the code map on every request
	}

	Deps struct {
		Source     Source
		SchoolData SchoolData
		Directory  *school.Directory
		Logger     core.Logger
		Cache      CodeMapCache // optional
		Metrics    Metrics      // optional
	}

	TableCount struct {
		Table Table `json:"table"`
		Count int   `json:"count"`
	}

	CountResult struct {
		TotalCount int          `json:"totalCount"`
		Tables     []TableCount `json:"tables"`
	}

	ChunkResult struct {
		Rows       [][]string `json:"rows"`
		NextCursor *string    `json:"nextCursor"`
		ChunkSize  int        `json:"chunkSize"`
		HasMore    bool       `json:"hasMore"`
	}
)

// Streamer serves exports. It keeps no per-export state between calls.
type Streamer struct {
	deps Deps
	opts Options
}

func NewStreamer(deps Deps, opts Options) *Streamer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 5000
	}
	return &Streamer{deps: deps, opts: opts}
}

func (s *Streamer) ChunkSize() int {
	return s.opts.ChunkSize
}

// Stream writes the whole filtered export to w, table by table, one chunk at a time.
// w is flushed after each chunk when it has a Flush method. It returns the number of rows written.
func (s *Streamer) Stream(ctx context.Context, w io.Writer, f Filter) (int, error) {
	codes, err := s.CodeMap(ctx)
	if err != nil {
		return 0, err
	}

	cw := csvio.NewWriter(w)
	if err = cw.Write(Header(true)); err != nil {
		return 0, errors.Wrap(err, "writing header")
	}

	var n int
	for _, table := range f.Tables() {
		cursor := ""
		for {
			if err = ctx.Err(); err != nil {
				return n, errors.Wrap(core.ErrConsumerGone, err.Error())
			}
			rows, err := s.deps.Source.FetchStudents(ctx, table.Partition(), f.Filter, cursor, s.opts.ChunkSize)
			if err != nil {
				return n, errors.Wrapf(err, "fetching %s", table)
			}
			for _, r := range rows {
				n++
				if err = cw.Write(withSerial(n, Row(r.Record(), codes))); err != nil {
					return n, errors.Wrap(err, "writing row")
				}
			}
			if err = cw.Flush(); err != nil {
				return n, errors.Wrap(core.ErrConsumerGone, err.Error())
			}
			if fl, ok := w.(interface{ Flush() }); ok {
				fl.Flush()
			}
			s.rowsExported(table, len(rows))

			if len(rows) < s.opts.ChunkSize {
				break
			}
			cursor = rows[len(rows)-1].Record().ID
		}
	}
	return n, nil
}

// Count counts every selected table concurrently.
func (s *Streamer) Count(ctx context.Context, f Filter) (CountResult, error) {
	tables := f.Tables()
	counts := make([]TableCount, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			n, err := s.deps.Source.CountStudents(gctx, table.Partition(), f.Filter)
			if err != nil {
				return errors.Wrapf(err, "counting %s", table)
			}
			counts[i] = TableCount{Table: table, Count: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CountResult{}, err
	}

	res := CountResult{Tables: counts}
	for _, c := range counts {
		res.TotalCount += c.Count
	}
	return res, nil
}

// Chunk returns the rows of table following cursor. Rows carry no S/N column.
func (s *Streamer) Chunk(ctx context.Context, table Table, f Filter, cursor string) (ChunkResult, error) {
	codes, err := s.CodeMap(ctx)
	if err != nil {
		return ChunkResult{}, err
	}
	rows, err := s.deps.Source.FetchStudents(ctx, table.Partition(), f.Filter, cursor, s.opts.ChunkSize)
	if err != nil {
		return ChunkResult{}, errors.Wrapf(err, "fetching %s", table)
	}

	res := ChunkResult{Rows: make([][]string, 0, len(rows)), ChunkSize: len(rows)}
	for _, r := range rows {
		res.Rows = append(res.Rows, Row(r.Record(), codes))
	}
	if len(rows) == s.opts.ChunkSize {
		next := rows[len(rows)-1].Record().ID
		res.NextCursor = &next
		res.HasMore = true
	}
	s.rowsExported(table, len(rows))
	return res, nil
}

// CodeMap builds the code resolution map, or serves it from the cache when one is configured.
func (s *Streamer) CodeMap(ctx context.Context) (CodeMap, error) {
	useCache := s.deps.Cache != nil && s.opts.CodeMapTTL > 0
	if useCache {
		m, ok, err := s.deps.Cache.GetCodeMap(ctx)
		if err != nil {
			s.deps.Logger.Warn("export: reading cached code map", err)
		} else if ok {
			return m, nil
		}
	}

	persisted, err := s.deps.SchoolData.QueryData(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading school data")
	}
	var bundled []school.Data
	if s.deps.Directory != nil {
		bundled = s.deps.Directory.Entries()
	}
	m := BuildCodeMap(persisted, bundled)

	if useCache {
		if err = s.deps.Cache.SetCodeMap(ctx, m, s.opts.CodeMapTTL); err != nil {
			s.deps.Logger.Warn("export: caching code map", err)
		}
	}
	return m, nil
}

func (s *Streamer) rowsExported(table Table, n int) {
	if s.deps.Metrics != nil && n > 0 {
		s.deps.Metrics.RowsExported(string(table), n)
	}
}

// Filename is the attachment name of a full export made at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("students_export_%s.csv", t.UTC().Format("2006-01-02"))
}
