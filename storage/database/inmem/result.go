package inmemdb

import (
	"context"

	"github.com/trezcool/examreg/core/result"
)

type ResultRepository struct {
	db *resultTable
}

var _ result.Repository = (*ResultRepository)(nil)

func NewResultRepository(db *DB) *ResultRepository {
	return &ResultRepository{db: db.result}
}

func (repo *ResultRepository) ExistingExaminationNumbers(_ context.Context, numbers []string) (map[string]bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	found := make(map[string]bool)
	for _, no := range numbers {
		if _, ok := repo.db.table[no]; ok {
			found[no] = true
		}
	}
	return found, nil
}

func (repo *ResultRepository) InsertResults(ctx context.Context, results []result.Result) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()

	var n int
	for _, res := range results {
		if _, ok := repo.db.table[res.ExaminationNo]; ok {
			continue
		}
		repo.db.table[res.ExaminationNo] = res
		n++
	}
	return n, nil
}

func (repo *ResultRepository) GetResultByExaminationNo(_ context.Context, examNo string) (result.Result, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if res, ok := repo.db.table[examNo]; ok {
		return res, nil
	}
	return result.Result{}, result.ErrNotFound
}

func (repo *ResultRepository) GetSetting(_ context.Context, key string) (result.Setting, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.settings[key]; ok {
		return s, nil
	}
	return result.Setting{}, result.ErrSettingNotFound
}

func (repo *ResultRepository) PutSetting(_ context.Context, s result.Setting) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.settings[s.Key] = s
	return nil
}
