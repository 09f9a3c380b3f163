package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/examreg/core/result"
	sqlxrepos "github.com/trezcool/examreg/storage/database/sqlx"
)

func newResult(examNo string) result.Result {
	return result.Result{
		ID:            "id-" + examNo,
		ExaminationNo: examNo,
		SessionYear:   "2024/2025",
		FirstName:     "Ada",
		LastName:      "Obi",
		DateOfBirth:   null.TimeFrom(time.Date(2010, 5, 3, 0, 0, 0, 0, time.UTC)),
		SchoolCode:    "001",
		LGACode:       "101",
		AccessPin:     "PIN-" + examNo,
		Scores: result.Scores{
			{Subject: "ENG", Score: "67", Grade: "B"},
			{Subject: "MTH", Score: "-"},
		},
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestResultRepository_insertAndGet(t *testing.T) {
	repo := sqlxrepos.NewResultRepository(newDB(t))
	ctx := context.Background()

	n, err := repo.InsertResults(ctx, []result.Result{newResult("E1"), newResult("E2")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// stored numbers are skipped, new ones go through
	dup := newResult("E1")
	dup.ID = "other"
	n, err = repo.InsertResults(ctx, []result.Result{dup, newResult("E3")})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := repo.ExistingExaminationNumbers(ctx, []string{"E1", "E3", "E9"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"E1": true, "E3": true}, found)

	got, err := repo.GetResultByExaminationNo(ctx, "E1")
	require.NoError(t, err)
	want := newResult("E1")
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Scores, got.Scores)
	assert.Equal(t, "PIN-E1", got.AccessPin)
	assert.False(t, got.Blocked)
	require.True(t, got.DateOfBirth.Valid)
	assert.True(t, want.DateOfBirth.Time.Equal(got.DateOfBirth.Time))
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetResultByExaminationNo(ctx, "E9")
	assert.Equal(t, result.ErrNotFound, err)

	n, err = repo.InsertResults(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResultRepository_settings(t *testing.T) {
	repo := sqlxrepos.NewResultRepository(newDB(t))
	ctx := context.Background()

	_, err := repo.GetSetting(ctx, result.ReleaseKey)
	assert.Equal(t, result.ErrSettingNotFound, err)

	require.NoError(t, repo.PutSetting(ctx, result.Setting{Key: result.ReleaseKey, BoolValue: false}))
	s, err := repo.GetSetting(ctx, result.ReleaseKey)
	require.NoError(t, err)
	assert.False(t, s.BoolValue)

	require.NoError(t, repo.PutSetting(ctx, result.Setting{Key: result.ReleaseKey, BoolValue: true}))
	s, err = repo.GetSetting(ctx, result.ReleaseKey)
	require.NoError(t, err)
	assert.True(t, s.BoolValue)
	assert.Equal(t, result.ReleaseKey, s.Key)
}
