package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/school"
)

const schoolDataBatch = 200

var schoolDataColumns = []string{"id", "lga_code", "l_code", "sch_code", "prog_id", "sch_name"}

type SchoolRepository struct {
	db core.DB
}

var _ school.Repository = (*SchoolRepository)(nil)

func NewSchoolRepository(db core.DB) *SchoolRepository {
	return &SchoolRepository{db: db}
}

func (repo *SchoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	var taken int
	q := repo.db.Rebind("SELECT COUNT(*) FROM school WHERE lga_code = ? AND code = ?")
	if err := repo.db.GetContext(ctx, &taken, q, sch.LGACode, sch.Code); err != nil {
		return school.School{}, errors.Wrap(err, "checking school code")
	}
	if taken > 0 {
		return school.School{}, school.ErrCodeExists
	}

	sch.CreatedAt = timestamp(sch.CreatedAt)
	q = repo.db.Rebind(`INSERT INTO school (id, name, code, lga_code, school_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := repo.db.ExecContext(ctx, q, sch.ID, sch.Name, sch.Code, sch.LGACode, sch.Type, sch.CreatedAt); err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo *SchoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	var sch school.School
	q := repo.db.Rebind("SELECT id, name, code, lga_code, school_type, created_at FROM school WHERE id = ?")
	if err := repo.db.GetContext(ctx, &sch, q, id); err != nil {
		return school.School{}, trapNoRowsErr(err, school.ErrNotFound, "getting school")
	}
	return sch, nil
}

func (repo *SchoolRepository) InsertSchoolData(ctx context.Context, entries []school.Data) (int, error) {
	var total int
	for start := 0; start < len(entries); start += schoolDataBatch {
		end := min(start+schoolDataBatch, len(entries))
		rows := make([][]interface{}, 0, end-start)
		for _, e := range entries[start:end] {
			rows = append(rows, []interface{}{e.ID, e.LGACode, e.LCode, e.SchCode, e.ProgID, e.SchName})
		}
		n, err := insertMany(ctx, repo.db, "school_data", schoolDataColumns, rows)
		if err != nil {
			return total, errors.Wrap(err, "inserting school data")
		}
		total += n
	}
	return total, nil
}

func (repo *SchoolRepository) QuerySchoolData(ctx context.Context) ([]school.Data, error) {
	var data []school.Data
	q := "SELECT id, lga_code, l_code, sch_code, prog_id, sch_name FROM school_data" + core.OrderBy(
		core.DBOrdering{Field: "lga_code", Ascending: true},
		core.DBOrdering{Field: "sch_code", Ascending: true},
	)
	if err := repo.db.SelectContext(ctx, &data, q); err != nil {
		return nil, errors.Wrap(err, "querying school data")
	}
	return data, nil
}
