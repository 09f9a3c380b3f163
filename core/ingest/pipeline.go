package ingest

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
)

type Options struct {
	ChunkSize        int // records per insert statement
	ProgressEvery    int // rows between validation progress events
	ValidationWindow int // rows per existing-keys lookup
	MaxDisplayErrors int // errors listed in the summary message
}

// OptionsFromConfig maps the ingest config section.
func OptionsFromConfig(conf core.IngestConfig) Options {
	return Options{
		ChunkSize:        conf.ChunkSize,
		ProgressEvery:    conf.ProgressEvery,
		ValidationWindow: conf.ValidationWindow,
		MaxDisplayErrors: conf.MaxDisplayErrors,
	}
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 50
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = 50
	}
	if o.ValidationWindow <= 0 {
		o.ValidationWindow = 500
	}
	if o.MaxDisplayErrors <= 0 {
		o.MaxDisplayErrors = 5
	}
	return o
}

// Job is one upload run.
type Job[T Record] struct {
	Table     *csvio.Table
	Normalize func(csvio.RawRow) T
	Store     Store[T]
	Replacer  Replacer[T] // nil: fire-and-continue chunks; set: one all-or-nothing replace
	Sink      Sink        // nil: events are discarded
}

// Pipeline runs uploads of one record kind.
type Pipeline[T Record] struct {
	name     string
	validate *validator.Validate
	logger   core.Logger
	metrics  Metrics
	opts     Options
}

func NewPipeline[T Record](name string, validate *validator.Validate, logger core.Logger, opts Options, metrics ...Metrics) *Pipeline[T] {
	var m Metrics = nopMetrics{}
	if len(metrics) > 0 && metrics[0] != nil {
		m = metrics[0]
	}
	return &Pipeline[T]{
		name:     name,
		validate: validate,
		logger:   logger,
		metrics:  m,
		opts:     opts.withDefaults(),
	}
}

// Run validates every row, persists the accepted ones and reports progress to job.Sink.
// Row problems end up in Summary.Errors; only store failures on the replace path, store lookups and consumer
// disconnects are returned as errors.
func (p *Pipeline[T]) Run(ctx context.Context, job Job[T]) (Summary, error) {
	prog := newProgress(ctx, job.Sink)
	rows := job.Table.Rows
	summary := Summary{TotalProcessed: len(rows), Skipped: job.Table.Skipped, Errors: []RowRejection{}}

	accepted, err := p.evaluate(ctx, rows, job, &summary, prog)
	if err != nil {
		return Summary{}, err
	}
	summary.Accepted = len(accepted)
	for reason, n := range summary.CountByReason() {
		p.metrics.RowsRejected(p.name, reason, n)
	}

	// a replace with nothing accepted would only wipe the scope
	if job.Replacer != nil && len(accepted) == 0 {
		return Summary{}, core.NewInputFormatError(fmt.Sprintf("No valid %s to save", p.name))
	}

	if err = prog.emit(Event{Phase: PhaseInserting, Progress: 50, Message: "Starting database insert..."}); err != nil {
		return Summary{}, err
	}
	if job.Replacer != nil {
		err = p.replace(ctx, accepted, job.Replacer, &summary, prog)
	} else {
		err = p.persist(ctx, accepted, job.Store, &summary, prog)
	}
	if err != nil {
		return Summary{}, err
	}
	p.metrics.RowsCreated(p.name, summary.Created)

	summary.finalize(p.name, p.opts.MaxDisplayErrors)
	err = prog.emit(Event{Phase: PhaseComplete, Progress: 100, Message: summary.Message, Summary: &summary})
	return summary, err
}

// evaluate is the validating phase: 0..50%.
func (p *Pipeline[T]) evaluate(ctx context.Context, rows []csvio.RawRow, job Job[T], summary *Summary, prog *progress) ([]T, error) {
	total := len(rows)
	if err := prog.emit(Event{Phase: PhaseValidating, Progress: 0, Message: "Starting validation...", Total: total}); err != nil {
		return nil, err
	}

	accepted := make([]T, 0, total)
	seen := make(map[string]bool, total)
	processed := 0

	for _, window := range chunk(rows, p.opts.ValidationWindow) {
		records := make([]T, len(window))
		rejections := make([]*Rejection, len(window))
		keys := make([]string, 0, len(window))
		for i, row := range window {
			records[i] = job.Normalize(row)
			if rej := p.check(records[i]); rej != nil {
				rejections[i] = rej
				continue
			}
			keys = append(keys, records[i].NaturalKey())
		}

		existing := map[string]bool{}
		if len(keys) > 0 {
			var err error
			if existing, err = job.Store.ExistingKeys(ctx, keys); err != nil {
				if ctx.Err() != nil {
					return nil, errors.Wrap(core.ErrConsumerGone, ctx.Err().Error())
				}
				return nil, errors.Wrap(err, "looking up existing keys")
			}
		}

		for i, rec := range records {
			rej := rejections[i]
			if rej == nil {
				key := rec.NaturalKey()
				if existing[key] || seen[key] {
					rej = &Rejection{Reason: ReasonDuplicateKey, Message: rec.DuplicateMessage()}
				} else {
					seen[key] = true
					accepted = append(accepted, rec)
				}
			}
			if rej != nil {
				summary.Errors = append(summary.Errors, RowRejection{Row: window[i].Line, Error: rej.Message, Reason: rej.Reason})
			}

			processed++
			if processed%p.opts.ProgressEvery == 0 || processed == total {
				err := prog.emit(Event{
					Phase:    PhaseValidating,
					Progress: Percent(processed, total, 0),
					Message:  fmt.Sprintf("Validating records... %d/%d", processed, total),
					Done:     processed,
					Total:    total,
				})
				if err != nil {
					return nil, err
				}
			}
		}
	}
	return accepted, nil
}

// check applies the struct validation rules; the first failed field decides the rejection.
func (p *Pipeline[T]) check(rec T) *Rejection {
	err := p.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		rej := rec.Reject(verrs[0])
		return &rej
	}
	return &Rejection{Reason: ReasonMissingRequiredField, Message: err.Error()}
}

// persist is the fire-and-continue inserting phase: 50..100%.
// A failed chunk is logged and skipped; later chunks still run.
func (p *Pipeline[T]) persist(ctx context.Context, records []T, store Store[T], summary *Summary, prog *progress) error {
	chunks := chunk(records, p.opts.ChunkSize)
	inserted := 0
	for i, c := range chunks {
		n, err := store.InsertMany(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(core.ErrConsumerGone, ctx.Err().Error())
			}
			summary.FailedChunks++
			p.metrics.ChunkFailed(p.name)
			p.logger.Error(fmt.Sprintf("%s: chunk %d/%d failed", p.name, i+1, len(chunks)), errors.Wrap(err, "inserting chunk"))
		} else {
			summary.Created += n
		}
		inserted += len(c)

		if err = prog.emit(p.insertEvent(i, len(chunks), inserted, len(records))); err != nil {
			return err
		}
	}
	return nil
}

// replace writes every chunk inside one transaction; any failure rolls everything back.
func (p *Pipeline[T]) replace(ctx context.Context, records []T, replacer Replacer[T], summary *Summary, prog *progress) error {
	chunks := chunk(records, p.opts.ChunkSize)
	created := 0
	err := replacer.Replace(ctx, func(ctx context.Context, tx Store[T]) error {
		inserted := 0
		for i, c := range chunks {
			n, err := tx.InsertMany(ctx, c)
			if err != nil {
				return errors.Wrapf(err, "inserting chunk %d/%d", i+1, len(chunks))
			}
			created += n
			inserted += len(c)
			if err = prog.emit(p.insertEvent(i, len(chunks), inserted, len(records))); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	summary.Created = created
	return nil
}

func (p *Pipeline[T]) insertEvent(i, chunks, inserted, total int) Event {
	return Event{
		Phase:    PhaseInserting,
		Progress: Percent(i+1, chunks, 50),
		Message:  fmt.Sprintf("Inserting records... %d/%d", inserted, total),
		Done:     inserted,
		Total:    total,
	}
}
