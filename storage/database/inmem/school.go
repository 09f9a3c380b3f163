package inmemdb

import (
	"context"

	"github.com/trezcool/examreg/core/school"
)

type SchoolRepository struct {
	db *schoolTable
}

var _ school.Repository = (*SchoolRepository)(nil)

func NewSchoolRepository(db *DB) *SchoolRepository {
	return &SchoolRepository{db: db.school}
}

func (repo *SchoolRepository) CreateSchool(_ context.Context, sch school.School) (school.School, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, s := range repo.db.table {
		if s.Code == sch.Code && s.LGACode == sch.LGACode {
			return school.School{}, school.ErrCodeExists
		}
	}
	repo.db.table[sch.ID] = sch
	return sch, nil
}

func (repo *SchoolRepository) GetSchoolByID(_ context.Context, id string) (school.School, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sch, ok := repo.db.table[id]; ok {
		return sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *SchoolRepository) InsertSchoolData(_ context.Context, entries []school.Data) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, e := range entries {
		key := e.LGACode + "|" + e.SchCode
		if _, ok := repo.db.data[key]; ok {
			continue
		}
		repo.db.data[key] = e
		repo.db.order = append(repo.db.order, key)
		n++
	}
	return n, nil
}

func (repo *SchoolRepository) QuerySchoolData(_ context.Context) ([]school.Data, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]school.Data, 0, len(repo.db.order))
	for _, key := range repo.db.order {
		entries = append(entries, repo.db.data[key])
	}
	return entries, nil
}

// lookup returns a school by id; callers hold no lock on the school table.
func (t *schoolTable) lookup(id string) (school.School, bool) {
	t.RLock()
	defer t.RUnlock()
	sch, ok := t.table[id]
	return sch, ok
}
