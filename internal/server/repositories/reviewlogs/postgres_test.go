package reviewlogs

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.ValueConverterOption(passthrough{}),
	)
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleLog() *models.ReviewLog {
	return &models.ReviewLog{
		Envelope:   models.Envelope{ID: "r1", CreatedAt: t0, UpdatedAt: t0, SyncVersion: 1},
		Schedule:   models.Schedule{State: models.CardStateLearning, Due: t0, ScheduledDays: 1},
		CardID:     "c1",
		Rating:     models.RatingGood,
		ReviewedAt: t0,
	}
}

func TestLockParentsAndLockState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT d.user_id = \$2, c.deleted_at\s+FROM cards c\s+JOIN decks d ON d.id = c.deck_id\s+WHERE c.id = \$1\s+FOR SHARE OF c`).
		WithArgs("c1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"owned", "deleted_at"}).AddRow(false, nil))
	p, err := repo.LockParents(context.Background(), "u1", sampleLog())
	require.NoError(t, err)
	assert.False(t, p.Owned)

	mock.ExpectQuery(`FROM review_logs l\s+JOIN cards c.*FOR UPDATE OF l`).
		WithArgs("r1", "u1").
		WillReturnError(sql.ErrNoRows)
	s, err := repo.LockState(context.Background(), "u1", "r1")
	require.NoError(t, err)
	assert.Nil(t, s)

	mock.ExpectQuery(`FROM review_logs l`).
		WithArgs("r1", "u1").
		WillReturnError(errors.New("boom"))
	_, err = repo.LockState(context.Background(), "u1", "r1")
	assert.ErrorContains(t, err, "failed to lock review log")
}

func TestInsert(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO review_logs .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("r1", "c1", 3, "learning", t0, 0.0, 0.0, 0, 1, t0, t0, t0, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Insert(context.Background(), sampleLog())
	require.NoError(t, err)
	assert.False(t, ok, "replayed log is not inserted twice")
}

func TestSelectUpdated(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cols := []string{"id", "card_id", "rating", "state", "due", "stability", "difficulty",
		"elapsed_days", "scheduled_days", "reviewed_at", "created_at", "updated_at", "deleted_at", "sync_version"}
	mock.ExpectQuery(`FROM review_logs l\s+JOIN cards c ON c.id = l.card_id\s+JOIN decks d ON d.id = c.deck_id\s+WHERE d.user_id = \$1 AND l.sync_version > \$2`).
		WithArgs("u1", int64(0)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "c1", 4, "review", t0, 3.2, 4.4, 2, 6, t0, t0, t0, nil, int64(9)))

	got, err := repo.SelectUpdated(context.Background(), "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.RatingEasy, got[0].Rating)
	assert.Equal(t, 6, got[0].ScheduledDays)
}

func TestDeletes(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	n, err := repo.DeleteByCardIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	mock.ExpectExec(`DELETE FROM review_logs WHERE card_id = ANY\(\$1\)`).
		WithArgs([]string{"c1"}).
		WillReturnResult(sqlmock.NewResult(0, 5))
	n, err = repo.DeleteByCardIDs(context.Background(), []string{"c1"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	mock.ExpectExec(`DELETE FROM review_logs WHERE id IN \(\s*SELECT id FROM review_logs\s+WHERE deleted_at IS NOT NULL AND deleted_at < \$1.*SKIP LOCKED\)`).
		WithArgs(t0, 100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err = repo.DeleteTombstoned(context.Background(), t0, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
