package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/registration"
)

type RegistrationRepository struct {
	db      *registrationTables
	schools *schoolTable
}

var _ registration.Repository = (*RegistrationRepository)(nil)

func NewRegistrationRepository(db *DB) *RegistrationRepository {
	return &RegistrationRepository{db: db.registrations, schools: db.school}
}

func (repo *RegistrationRepository) ExistingStudentNumbers(_ context.Context, table registration.Table, numbers []string, exclude *registration.Scope) (map[string]bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.db.tables[table]
	found := make(map[string]bool)
	for _, no := range numbers {
		reg, ok := rows[no]
		if ok && !inScope(table, reg, exclude) {
			found[no] = true
		}
	}
	return found, nil
}

func (repo *RegistrationRepository) InsertRegistrations(ctx context.Context, table registration.Table, regs []registration.Registration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	repo.db.Lock()
	defer repo.db.Unlock()
	return insert(repo.db.tables[table], table, regs), nil
}

func (repo *RegistrationRepository) ReplaceRegistrations(ctx context.Context, scope registration.Scope, fn func(context.Context, registration.Writer) error) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	table := scope.Partition.Table()
	staged := make(map[string]registration.Registration, len(repo.db.tables[table]))
	for no, reg := range repo.db.tables[table] {
		if !inScope(table, reg, &scope) {
			staged[no] = reg
		}
	}

	err := fn(ctx, stagedWriter{rows: staged})
	if ctx.Err() == context.DeadlineExceeded {
		return core.ErrTransactionTimeout
	}
	if err != nil {
		return err
	}
	repo.db.tables[table] = staged
	return nil
}

// FetchStudents returns up to limit rows of partition p after the cursor, ordered by created_at DESC, id ASC.
func (repo *RegistrationRepository) FetchStudents(_ context.Context, p registration.Partition, f registration.Filter, after string, limit int) ([]registration.Exportable, error) {
	students := repo.filter(p, f)
	sort.Slice(students, func(i, j int) bool {
		if !students[i].CreatedAt.Equal(students[j].CreatedAt) {
			return students[i].CreatedAt.After(students[j].CreatedAt)
		}
		return students[i].ID < students[j].ID
	})

	start := 0
	if after != "" {
		start = len(students)
		for i, s := range students {
			if s.ID == after {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(students))

	out := make([]registration.Exportable, 0, end-start)
	for _, s := range students[start:end] {
		out = append(out, registration.Tag(p, s))
	}
	return out, nil
}

func (repo *RegistrationRepository) CountStudents(_ context.Context, p registration.Partition, f registration.Filter) (int, error) {
	return len(repo.filter(p, f)), nil
}

func (repo *RegistrationRepository) filter(p registration.Partition, f registration.Filter) []registration.Student {
	repo.db.RLock()
	defer repo.db.RUnlock()

	table := p.Table()
	search := strings.ToLower(f.Search)
	var students []registration.Student
	for _, reg := range repo.db.tables[table] {
		if table == registration.TableStudent && reg.Late != p.Late() {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(reg.FirstName), search) &&
			!strings.Contains(strings.ToLower(reg.LastName), search) &&
			!strings.Contains(strings.ToLower(reg.StudentNumber), search) {
			continue
		}
		sch, _ := repo.schools.lookup(reg.SchoolID)
		if (f.LGACode != "" && sch.LGACode != f.LGACode) || (f.SchoolCode != "" && sch.Code != f.SchoolCode) {
			continue
		}
		students = append(students, registration.Student{Registration: reg, SchoolCode: sch.Code, SchoolLGACode: sch.LGACode})
	}
	return students
}

type stagedWriter struct {
	rows map[string]registration.Registration
}

func (w stagedWriter) InsertRegistrations(ctx context.Context, table registration.Table, regs []registration.Registration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return insert(w.rows, table, regs), nil
}

func insert(rows map[string]registration.Registration, table registration.Table, regs []registration.Registration) int {
	var n int
	for _, reg := range regs {
		if _, ok := rows[reg.StudentNumber]; ok {
			continue
		}
		if table == registration.TablePost {
			reg.Late = false
		}
		rows[reg.StudentNumber] = reg
		n++
	}
	return n
}

func inScope(table registration.Table, reg registration.Registration, scope *registration.Scope) bool {
	if scope == nil || reg.SchoolID != scope.SchoolID {
		return false
	}
	return table == registration.TablePost || reg.Late == scope.Partition.Late()
}
