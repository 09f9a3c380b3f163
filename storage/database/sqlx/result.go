package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/result"
)

var resultColumns = []string{
	"id", "examination_no", "session_year", "first_name", "middle_name", "last_name", "date_of_birth", "sex",
	"institution_code", "school_code", "school_name", "lga_code", "religious_type", "remark", "access_pin",
	"scores", "blocked", "created_at",
}

type ResultRepository struct {
	db core.DB
}

var _ result.Repository = (*ResultRepository)(nil)

func NewResultRepository(db core.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (repo *ResultRepository) ExistingExaminationNumbers(ctx context.Context, numbers []string) (map[string]bool, error) {
	found, err := existing(ctx, repo.db, "result", "examination_no", numbers, "")
	return found, errors.Wrap(err, "checking examination numbers")
}

func (repo *ResultRepository) InsertResults(ctx context.Context, results []result.Result) (int, error) {
	rows := make([][]interface{}, 0, len(results))
	for _, r := range results {
		rows = append(rows, []interface{}{
			r.ID, r.ExaminationNo, r.SessionYear, r.FirstName, r.MiddleName, r.LastName, r.DateOfBirth, r.Sex,
			r.InstitutionCode, r.SchoolCode, r.SchoolName, r.LGACode, r.ReligiousType, r.Remark, r.AccessPin,
			r.Scores, r.Blocked, timestamp(r.CreatedAt),
		})
	}
	n, err := insertMany(ctx, repo.db, "result", resultColumns, rows)
	return n, errors.Wrap(err, "inserting results")
}

func (repo *ResultRepository) GetResultByExaminationNo(ctx context.Context, examNo string) (result.Result, error) {
	var res result.Result
	q := repo.db.Rebind("SELECT " + strings.Join(resultColumns, ", ") + " FROM result WHERE examination_no = ?")
	if err := repo.db.GetContext(ctx, &res, q, examNo); err != nil {
		return result.Result{}, trapNoRowsErr(err, result.ErrNotFound, "getting result")
	}
	return res, nil
}

func (repo *ResultRepository) GetSetting(ctx context.Context, key string) (result.Setting, error) {
	var s result.Setting
	q := repo.db.Rebind("SELECT name, bool_value, updated_at FROM setting WHERE name = ?")
	if err := repo.db.GetContext(ctx, &s, q, key); err != nil {
		return result.Setting{}, trapNoRowsErr(err, result.ErrSettingNotFound, "getting setting")
	}
	return s, nil
}

func (repo *ResultRepository) PutSetting(ctx context.Context, s result.Setting) error {
	q := repo.db.Rebind(`INSERT INTO setting (name, bool_value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET bool_value = excluded.bool_value, updated_at = excluded.updated_at`)
	_, err := repo.db.ExecContext(ctx, q, s.Key, s.BoolValue, timestamp(s.UpdatedAt))
	return errors.Wrap(err, "saving setting")
}
