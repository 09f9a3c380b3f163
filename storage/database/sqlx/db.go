package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/examreg/core"
)

func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// timestamp drops sub-second precision so text-backed engines keep created_at order.
func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Second)
}

// insertMany inserts rows in one statement and reports how many were written.
// Rows hitting a unique constraint are skipped.
func insertMany(ctx context.Context, exec core.DBExecutor, table string, columns []string, rows [][]interface{}) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		tuples[i] = tuple
		args = append(args, row...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s ON CONFLICT DO NOTHING",
		table, strings.Join(columns, ", "), strings.Join(tuples, ", "))

	res, err := exec.ExecContext(ctx, exec.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// existing returns which of keys are stored in table.column, under an optional extra condition.
func existing(ctx context.Context, exec core.DBExecutor, table, column string, keys []string, cond string, condArgs ...interface{}) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?)", column, table, column)
	if cond != "" {
		q += " AND " + cond
	}
	q, args, err := sqlx.In(q, append([]interface{}{keys}, condArgs...)...)
	if err != nil {
		return nil, err
	}
	var stored []string
	if err = exec.SelectContext(ctx, &stored, exec.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, k := range stored {
		found[k] = true
	}
	return found, nil
}
