package result

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

var (
	ErrNotFound        = errors.New("result not found")
	ErrSettingNotFound = errors.New("setting not found")
)

type (
	Repository interface {
		// ExistingExaminationNumbers returns the subset of numbers already stored.
		ExistingExaminationNumbers(ctx context.Context, numbers []string) (map[string]bool, error)
		// InsertResults inserts in one statement, skipping examination numbers already stored.
		InsertResults(ctx context.Context, results []Result) (int, error)
		GetResultByExaminationNo(ctx context.Context, examNo string) (Result, error)
		GetSetting(ctx context.Context, key string) (Setting, error)
		PutSetting(ctx context.Context, s Setting) error
	}

	Service struct {
		repo     Repository
		dir      *school.Directory
		pipeline *ingest.Pipeline[Result]
	}
)

func NewService(repo Repository, dir *school.Directory, validate *validator.Validate, logger core.Logger, opts ingest.Options, metrics ingest.Metrics) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		pipeline: ingest.NewPipeline[Result]("results", validate, logger, opts, metrics),
	}
}

// Import ingests an uploaded results file. New results are blocked while the global release setting is off.
func (svc *Service) Import(ctx context.Context, tbl *csvio.Table, sink ingest.Sink) (ingest.Summary, error) {
	if !tbl.HasColumn(colExaminationNo...) {
		return ingest.Summary{}, core.NewInputFormatError("Missing required column EXAMINATIONNO")
	}
	blocked, err := svc.blockNewResults(ctx)
	if err != nil {
		return ingest.Summary{}, err
	}

	norm := normalizer{dir: svc.dir, blocked: blocked, now: time.Now().UTC()}
	return svc.pipeline.Run(ctx, ingest.Job[Result]{
		Table:     tbl,
		Normalize: norm.normalize,
		Store:     store{repo: svc.repo},
		Sink:      sink,
	})
}

// blockNewResults is true only when the release setting exists and is off.
func (svc *Service) blockNewResults(ctx context.Context) (bool, error) {
	released, found, err := svc.Released(ctx)
	if err != nil {
		return false, err
	}
	return found && !released, nil
}

// Released returns the global release state and whether it was ever set.
func (svc *Service) Released(ctx context.Context) (released, found bool, err error) {
	s, err := svc.repo.GetSetting(ctx, ReleaseKey)
	if err != nil {
		if errors.Cause(err) == ErrSettingNotFound {
			return false, false, nil
		}
		return false, false, errors.Wrap(err, "reading results release setting")
	}
	return s.BoolValue, true, nil
}

// SetReleased switches the global release setting.
func (svc *Service) SetReleased(ctx context.Context, released bool) error {
	err := svc.repo.PutSetting(ctx, Setting{Key: ReleaseKey, BoolValue: released, UpdatedAt: time.Now().UTC()})
	return errors.Wrap(err, "saving results release setting")
}

func (svc *Service) GetByExaminationNo(ctx context.Context, examNo string) (Result, error) {
	return svc.repo.GetResultByExaminationNo(ctx, core.CleanString(examNo))
}

// store adapts Repository to the ingest pipeline.
type store struct {
	repo Repository
}

func (s store) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	return s.repo.ExistingExaminationNumbers(ctx, keys)
}

func (s store) InsertMany(ctx context.Context, results []Result) (int, error) {
	return s.repo.InsertResults(ctx, results)
}
