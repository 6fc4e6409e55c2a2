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

var crossRefDetailCols = []string{"id", "subject_id", "instructor_id", "hue", "subject_code", "subject_description", "subject_date_added", "instructor_name"}

func TestCrossRefRepositoryListResolvesInstructor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND c.subject_id = ? ORDER BY s.code, s.description, i.name")).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows(crossRefDetailCols).
			AddRow("ref-1", "sub-1", "ins-1", 120, "MAT101", "Calculus", now, "Ada").
			AddRow("ref-2", "sub-1", nil, 200, "MAT101", "Calculus", now, nil))

	details, err := repo.List(context.Background(), models.CrossRefFilter{SubjectID: "sub-1"})
	require.NoError(t, err)
	require.Len(t, details, 2)
	require.NotNil(t, details[0].Instructor)
	assert.Equal(t, "Ada", details[0].Instructor.Name)
	assert.Equal(t, "Calculus", details[0].Subject.Description)
	assert.Nil(t, details[1].Instructor)
	assert.Nil(t, details[1].InstructorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossRefRepositoryExistsPairTreatsNullAsValue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM subject_instructor_cross_refs WHERE subject_id = ? AND COALESCE(instructor_id, '') = ? LIMIT 1")).
		WithArgs("sub-1", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsPair(context.Background(), nil, "sub-1", nil, "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossRefRepositoryClearAndAssignInstructor(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE subject_instructor_cross_refs SET instructor_id = NULL WHERE instructor_id = ?")).
		WithArgs("ins-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE subject_instructor_cross_refs SET instructor_id = ? WHERE id IN (?, ?) AND instructor_id IS NULL")).
		WithArgs("ins-1", "ref-1", "ref-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	cleared, err := repo.ClearInstructor(context.Background(), nil, "ins-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, cleared)

	assigned, err := repo.AssignInstructor(context.Background(), nil, []string{"ref-1", "ref-2"}, "ins-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, assigned)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossRefRepositoryListByIDsSkipsEmpty(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	refs, err := repo.ListByIDs(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, refs)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, subject_id, instructor_id, hue FROM subject_instructor_cross_refs WHERE id IN (?, ?) ORDER BY id")).
		WithArgs("ref-1", "ref-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject_id", "instructor_id", "hue"}).AddRow("ref-1", "sub-1", nil, 10))

	refs, err = repo.ListByIDs(context.Background(), nil, []string{"ref-1", "ref-9"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, 10, refs[0].Hue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossRefRepositoryDeleteBySubject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subject_instructor_cross_refs WHERE subject_id = ?")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteBySubject(context.Background(), nil, "sub-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrossRefRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCrossRefRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subject_instructor_cross_refs (id, subject_id, instructor_id, hue)")).
		WithArgs("ref-1", "sub-1", "ins-1", 42).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ref := &models.CrossRef{ID: "ref-1", SubjectID: "sub-1", InstructorID: strPtr("ins-1"), Hue: 42}
	require.NoError(t, repo.Create(context.Background(), nil, ref))
	assert.NoError(t, mock.ExpectationsWereMet())
}
