package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

var timetableCols = []string{"id", "name", "number_of_days", "starting_day", "start_time", "end_time", "created_at", "updated_at"}

func TestTimetableRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, number_of_days, starting_day, start_time, end_time, created_at, updated_at FROM timetables WHERE id = ?")).
		WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows(timetableCols).AddRow("tt-1", "Term 1", 5, "MONDAY", 8, 15, now, now))

	timetable, err := repo.FindByID(context.Background(), nil, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.Monday, timetable.StartingDay)
	assert.Equal(t, models.HourOfDay(8), timetable.StartTime)
	assert.Equal(t, 7, timetable.PeriodCount())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetables")).
		WithArgs(sqlmock.AnyArg(), "Term 1", 2, "MONDAY", 8, 11, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	timetable := &models.Timetable{Name: "Term 1", NumberOfDays: 2, StartingDay: models.Monday, StartTime: 8, EndTime: 11}
	require.NoError(t, repo.Create(context.Background(), nil, timetable))
	assert.NotEmpty(t, timetable.ID)
	assert.False(t, timetable.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetables WHERE 1=1 AND LOWER(name) LIKE ? ORDER BY name ASC LIMIT 10 OFFSET 0")).
		WithArgs("%term%").
		WillReturnRows(sqlmock.NewRows(timetableCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetables WHERE 1=1 AND LOWER(name) LIKE ?")).
		WithArgs("%term%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	list, total, err := repo.List(context.Background(), models.TimetableFilter{Search: "Term", SortBy: "name", SortOrder: "asc", PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
