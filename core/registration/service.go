package registration

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/csvio"
	"github.com/trezcool/examreg/core/ingest"
	"github.com/trezcool/examreg/core/school"
)

type (
	// Writer inserts registrations into one table, skipping student numbers already stored.
	Writer interface {
		InsertRegistrations(ctx context.Context, table Table, regs []Registration) (int, error)
	}

	Repository interface {
		Writer
		// ExistingStudentNumbers returns the subset of numbers stored in table.
		// Rows inside exclude (when set) are ignored, since an override is about to delete them.
		ExistingStudentNumbers(ctx context.Context, table Table, numbers []string, exclude *Scope) (map[string]bool, error)
		// ReplaceRegistrations deletes scope and runs fn in the same transaction.
		// Everything is rolled back when fn fails; a blown time budget yields core.ErrTransactionTimeout.
		ReplaceRegistrations(ctx context.Context, scope Scope, fn func(ctx context.Context, tx Writer) error) error
	}

	// SchoolGetter resolves the owner of an upload.
	SchoolGetter interface {
		GetByID(ctx context.Context, id string) (school.School, error)
	}

	ImportRequest struct {
		SchoolID  string
		Partition Partition
		Override  bool
	}

	Service struct {
		repo     Repository
		schools  SchoolGetter
		pipeline *ingest.Pipeline[Registration]
	}
)

func NewService(repo Repository, schools SchoolGetter, validate *validator.Validate, logger core.Logger, opts ingest.Options, metrics ingest.Metrics) *Service {
	return &Service{
		repo:     repo,
		schools:  schools,
		pipeline: ingest.NewPipeline[Registration]("registrations", validate, logger, opts, metrics),
	}
}

// Import ingests an uploaded registrations file into req.SchoolID's partition.
// With req.Override the partition is replaced wholesale in one transaction.
func (svc *Service) Import(ctx context.Context, req ImportRequest, tbl *csvio.Table, sink ingest.Sink) (ingest.Summary, error) {
	if !tbl.HasColumn(colStudentNumber...) {
		return ingest.Summary{}, core.NewInputFormatError("Missing required column Reg. No")
	}
	if req.Partition == "" {
		req.Partition = PartitionRegular
	}
	sch, err := svc.schools.GetByID(ctx, req.SchoolID)
	if err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return ingest.Summary{}, core.NewValidationError(err, core.FieldError{Field: "schoolId", Error: err.Error()})
		}
		return ingest.Summary{}, errors.Wrap(err, "getting school")
	}

	scope := Scope{SchoolID: sch.ID, Partition: req.Partition}
	st := store{repo: svc.repo, table: req.Partition.Table()}
	job := ingest.Job[Registration]{
		Table:     tbl,
		Normalize: normalizer{schoolID: sch.ID, partition: req.Partition, now: time.Now().UTC()}.normalize,
		Sink:      sink,
	}
	if req.Override {
		st.exclude = &scope
		job.Replacer = replacer{repo: svc.repo, scope: scope}
	}
	job.Store = st
	return svc.pipeline.Run(ctx, job)
}

type store struct {
	repo    Repository
	table   Table
	exclude *Scope
}

func (s store) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	return s.repo.ExistingStudentNumbers(ctx, s.table, keys, s.exclude)
}

func (s store) InsertMany(ctx context.Context, regs []Registration) (int, error) {
	return s.repo.InsertRegistrations(ctx, s.table, regs)
}

type replacer struct {
	repo  Repository
	scope Scope
}

func (r replacer) Replace(ctx context.Context, fn func(context.Context, ingest.Store[Registration]) error) error {
	table := r.scope.Partition.Table()
	return r.repo.ReplaceRegistrations(ctx, r.scope, func(ctx context.Context, tx Writer) error {
		return fn(ctx, txStore{tx: tx, table: table})
	})
}

// txStore writes through an open transaction. Key lookups never happen inside it.
type txStore struct {
	tx    Writer
	table Table
}

func (s txStore) ExistingKeys(context.Context, []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (s txStore) InsertMany(ctx context.Context, regs []Registration) (int, error) {
	return s.tx.InsertRegistrations(ctx, s.table, regs)
}
