package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// storeFixture is a migrated in-memory SQLite database with the real
// repositories on top.
type storeFixture struct {
	db          *sqlx.DB
	subjects    *repository.SubjectRepository
	instructors *repository.InstructorRepository
	crossRefs   *repository.CrossRefRepository
	timetables  *repository.TimetableRepository
	sessions    *repository.SessionRepository
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLite(ctx, config.DatabaseConfig{SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db))

	return &storeFixture{
		db:          db,
		subjects:    repository.NewSubjectRepository(db),
		instructors: repository.NewInstructorRepository(db),
		crossRefs:   repository.NewCrossRefRepository(db),
		timetables:  repository.NewTimetableRepository(db),
		sessions:    repository.NewSessionRepository(db),
	}
}

func (f *storeFixture) mutationStores() MutationStores {
	return MutationStores{
		Subjects:    f.subjects,
		Instructors: f.instructors,
		CrossRefs:   f.crossRefs,
		Timetables:  f.timetables,
		Sessions:    f.sessions,
	}
}

func (f *storeFixture) addSubject(t *testing.T, id, code, description string) models.Subject {
	t.Helper()
	subject := models.Subject{ID: id, Code: code, Description: description, DateAdded: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, f.subjects.Create(context.Background(), nil, &subject))
	return subject
}

func (f *storeFixture) addInstructor(t *testing.T, id, name string) models.Instructor {
	t.Helper()
	instructor := models.Instructor{ID: id, Name: name}
	require.NoError(t, f.instructors.Create(context.Background(), nil, &instructor))
	return instructor
}

func (f *storeFixture) addCrossRef(t *testing.T, id, subjectID string, instructorID *string, hue int) models.CrossRef {
	t.Helper()
	ref := models.CrossRef{ID: id, SubjectID: subjectID, InstructorID: instructorID, Hue: hue}
	require.NoError(t, f.crossRefs.Create(context.Background(), nil, &ref))
	return ref
}

// addTimetable creates a timetable with a full grid of Empty cells and then
// applies cells on top of it.
func (f *storeFixture) addTimetable(t *testing.T, timetable models.Timetable, cells map[cellKey]models.SessionContent) models.Timetable {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.timetables.Create(ctx, nil, &timetable))
	require.NoError(t, f.sessions.InsertBatch(ctx, nil, emptyGrid(timetable)))
	for key, content := range cells {
		n, err := f.sessions.SetContent(ctx, nil, timetable.ID, key.day, key.hour, key.hour+1, content)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}
	return timetable
}

func (f *storeFixture) grid(t *testing.T, timetableID string) map[cellKey]models.SessionContent {
	t.Helper()
	sessions, err := f.sessions.ListByTimetable(context.Background(), nil, timetableID)
	require.NoError(t, err)
	grid := make(map[cellKey]models.SessionContent, len(sessions))
	for _, s := range sessions {
		grid[cellKey{day: s.DayOfWeek, hour: s.StartTime}] = s.Content
	}
	return grid
}

type cellKey struct {
	day  models.DayOfWeek
	hour models.HourOfDay
}

func weekTimetable(id string) models.Timetable {
	return models.Timetable{
		ID:           id,
		Name:         "Semester " + id,
		NumberOfDays: 2,
		StartingDay:  models.Monday,
		StartTime:    8,
		EndTime:      11,
	}
}
