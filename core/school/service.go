package school

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
)

var (
	ErrNotFound   = errors.New("school not found")
	ErrCodeExists = errors.New("a school with this code already exists in the LGA")
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School) (School, error)
		GetSchoolByID(ctx context.Context, id string) (School, error)
		// InsertSchoolData inserts reference entries, skipping (lgaCode, schCode) pairs already present.
		InsertSchoolData(ctx context.Context, entries []Data) (int, error)
		QuerySchoolData(ctx context.Context) ([]Data, error)
	}

	Service struct {
		repo Repository
		dir  *Directory
	}
)

func NewService(repo Repository, dir *Directory) *Service {
	return &Service{repo: repo, dir: dir}
}

func (svc *Service) Directory() *Directory {
	return svc.dir
}

func (svc *Service) Create(ctx context.Context, ns NewSchool) (School, error) {
	typ := core.CleanString(ns.Type, true)
	if typ == "" {
		typ = TypePublic
	}
	sch := School{
		ID:        uuid.NewString(),
		Name:      core.CleanString(ns.Name),
		Code:      core.CleanString(ns.Code),
		LGACode:   core.CleanString(ns.LGACode),
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}
	sch, err := svc.repo.CreateSchool(ctx, sch)
	if errors.Cause(err) == ErrCodeExists {
		return School{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	return sch, err
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchoolByID(ctx, strings.TrimSpace(id))
}

// SeedData copies the bundled dataset into school_data. Entries already present are left untouched.
func (svc *Service) SeedData(ctx context.Context) (int, error) {
	entries := svc.dir.Entries()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].LCode == "" {
			entries[i].LCode = DefaultLCode
		}
	}
	n, err := svc.repo.InsertSchoolData(ctx, entries)
	return n, errors.Wrap(err, "seeding school data")
}

func (svc *Service) QueryData(ctx context.Context) ([]Data, error) {
	return svc.repo.QuerySchoolData(ctx)
}
