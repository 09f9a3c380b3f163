package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
	"github.com/trezcool/examreg/core/export"
	"github.com/trezcool/examreg/core/registration"
)

var registrationColumns = []string{
	"id", "school_id", "student_number", "acc_code", "first_name", "other_name", "last_name", "date_of_birth",
	"gender", "school_type", "religious_type", "ca_scores", "year", "prcd", "created_at",
}

func columnsOf(table registration.Table) []string {
	if table == registration.TableStudent {
		return append(append([]string{}, registrationColumns...), "late_registration")
	}
	return registrationColumns
}

func rowOf(table registration.Table, reg registration.Registration) []interface{} {
	row := []interface{}{
		reg.ID, reg.SchoolID, reg.StudentNumber, reg.AccCode, reg.FirstName, reg.OtherName, reg.LastName, reg.DateOfBirth,
		reg.Gender, reg.SchoolType, reg.ReligiousType, reg.CAScores, reg.Year, reg.Prcd, timestamp(reg.CreatedAt),
	}
	if table == registration.TableStudent {
		row = append(row, reg.Late)
	}
	return row
}

// scopeCond matches the rows an override of scope replaces.
func scopeCond(scope registration.Scope) (string, []interface{}) {
	if scope.Partition.Table() == registration.TablePost {
		return "school_id = ?", []interface{}{scope.SchoolID}
	}
	return "school_id = ? AND late_registration = ?", []interface{}{scope.SchoolID, scope.Partition.Late()}
}

type RegistrationRepository struct {
	db             core.DB
	replaceMaxWait time.Duration
	replaceTimeout time.Duration
}

var (
	_ registration.Repository = (*RegistrationRepository)(nil)
	_ export.Source           = (*RegistrationRepository)(nil)
)

// NewRegistrationRepository bounds overrides by maxWait to get a connection and timeout for the whole transaction.
func NewRegistrationRepository(db core.DB, maxWait, timeout time.Duration) *RegistrationRepository {
	return &RegistrationRepository{db: db, replaceMaxWait: maxWait, replaceTimeout: timeout}
}

func (repo *RegistrationRepository) ExistingStudentNumbers(ctx context.Context, table registration.Table, numbers []string, exclude *registration.Scope) (map[string]bool, error) {
	var (
		cond string
		args []interface{}
	)
	if exclude != nil {
		cond, args = scopeCond(*exclude)
		cond = "NOT (" + cond + ")"
	}
	found, err := existing(ctx, repo.db, string(table), "student_number", numbers, cond, args...)
	return found, errors.Wrap(err, "checking student numbers")
}

func (repo *RegistrationRepository) InsertRegistrations(ctx context.Context, table registration.Table, regs []registration.Registration) (int, error) {
	return insertRegistrations(ctx, repo.db, table, regs)
}

func insertRegistrations(ctx context.Context, exec core.DBExecutor, table registration.Table, regs []registration.Registration) (int, error) {
	rows := make([][]interface{}, 0, len(regs))
	for _, reg := range regs {
		rows = append(rows, rowOf(table, reg))
	}
	n, err := insertMany(ctx, exec, string(table), columnsOf(table), rows)
	return n, errors.Wrap(err, "inserting registrations")
}

func (repo *RegistrationRepository) ReplaceRegistrations(ctx context.Context, scope registration.Scope, fn func(context.Context, registration.Writer) error) error {
	waitCtx, cancelWait := context.WithTimeout(ctx, repo.replaceMaxWait)
	conn, err := repo.db.Connx(waitCtx)
	cancelWait()
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return core.ErrTransactionTimeout
		}
		return errors.Wrap(err, "acquiring connection")
	}
	defer func() { _ = conn.Close() }()

	txCtx, cancel := context.WithTimeout(ctx, repo.replaceTimeout)
	defer cancel()
	timedOut := func(err error) error {
		if errors.Is(txCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return core.ErrTransactionTimeout
		}
		return err
	}

	tx, err := conn.BeginTxx(txCtx, nil)
	if err != nil {
		return timedOut(errors.Wrap(err, "starting transaction"))
	}
	rollback := func(err error) error {
		_ = tx.Rollback()
		return timedOut(err)
	}

	cond, args := scopeCond(scope)
	q := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s", scope.Partition.Table(), cond))
	if _, err = tx.ExecContext(txCtx, q, args...); err != nil {
		return rollback(errors.Wrap(err, "deleting registrations"))
	}
	if err = fn(txCtx, txWriter{tx: tx}); err != nil {
		return rollback(err)
	}
	if err = tx.Commit(); err != nil {
		return timedOut(errors.Wrap(err, "committing registrations"))
	}
	return nil
}

type txWriter struct {
	tx core.DBExecutor
}

func (w txWriter) InsertRegistrations(ctx context.Context, table registration.Table, regs []registration.Registration) (int, error) {
	return insertRegistrations(ctx, w.tx, table, regs)
}

// studentQuery renders the joined select (or count) of partition p under filter f.
func studentQuery(p registration.Partition, f registration.Filter, count bool) (string, []interface{}) {
	table := p.Table()
	var (
		conds []string
		args  []interface{}
	)
	if table == registration.TableStudent {
		conds = append(conds, "r.late_registration = ?")
		args = append(args, p.Late())
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		conds = append(conds, "(LOWER(r.first_name) LIKE ? OR LOWER(r.last_name) LIKE ? OR LOWER(r.student_number) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.LGACode != "" {
		conds = append(conds, "s.lga_code = ?")
		args = append(args, f.LGACode)
	}
	if f.SchoolCode != "" {
		conds = append(conds, "s.code = ?")
		args = append(args, f.SchoolCode)
	}

	selection := "COUNT(*)"
	if !count {
		cols := make([]string, 0, len(columnsOf(table))+2)
		for _, c := range columnsOf(table) {
			cols = append(cols, "r."+c)
		}
		selection = strings.Join(append(cols, "s.code AS school_code", "s.lga_code AS school_lga_code"), ", ")
	}
	q := fmt.Sprintf("SELECT %s FROM %s r JOIN school s ON s.id = r.school_id", selection, table)
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return q, args
}

// FetchStudents returns up to limit rows of partition p after the cursor, ordered by created_at DESC, id ASC.
func (repo *RegistrationRepository) FetchStudents(ctx context.Context, p registration.Partition, f registration.Filter, after string, limit int) ([]registration.Exportable, error) {
	q, args := studentQuery(p, f, false)
	if after != "" {
		joiner := " AND "
		if !strings.Contains(q, " WHERE ") {
			joiner = " WHERE "
		}
		at := fmt.Sprintf("(SELECT created_at FROM %s WHERE id = ?)", p.Table())
		q += joiner + "(r.created_at < " + at + " OR (r.created_at = " + at + " AND r.id > ?))"
		args = append(args, after, after, after)
	}
	q += core.OrderBy(
		core.DBOrdering{Field: "r.created_at"},
		core.DBOrdering{Field: "r.id", Ascending: true},
	) + " LIMIT ?"
	args = append(args, limit)

	var students []registration.Student
	if err := repo.db.SelectContext(ctx, &students, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrapf(err, "fetching %s registrations", p)
	}
	out := make([]registration.Exportable, 0, len(students))
	for _, s := range students {
		out = append(out, registration.Tag(p, s))
	}
	return out, nil
}

func (repo *RegistrationRepository) CountStudents(ctx context.Context, p registration.Partition, f registration.Filter) (int, error) {
	q, args := studentQuery(p, f, true)
	var n int
	if err := repo.db.GetContext(ctx, &n, repo.db.Rebind(q), args...); err != nil {
		return 0, errors.Wrapf(err, "counting %s registrations", p)
	}
	return n, nil
}
