package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestSubjectRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, code, description, date_added FROM subjects WHERE 1=1 AND (LOWER(code) LIKE ? OR LOWER(description) LIKE ?) ORDER BY code ASC LIMIT 20 OFFSET 0")).
		WithArgs("%mat%", "%mat%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "description", "date_added"}).
			AddRow("sub-1", "MAT101", "Calculus", now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM subjects WHERE 1=1 AND (LOWER(code) LIKE ? OR LOWER(description) LIKE ?)")).
		WithArgs("%mat%", "%mat%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	subjects, total, err := repo.List(context.Background(), models.SubjectFilter{Search: "MAT", SortBy: "code", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Calculus", subjects[0].Description)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryListRejectsUnknownSort(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY date_added DESC LIMIT 20 OFFSET 20")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "description", "date_added"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM subjects")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.SubjectFilter{SortBy: "id; DROP TABLE subjects", Page: 2, PageSize: 500})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreateKeepsPresetID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	added := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subjects (id, code, description, date_added)")).
		WithArgs("sub-1", "MAT101", "Calculus", added).
		WillReturnResult(sqlmock.NewResult(1, 1))

	subject := &models.Subject{ID: "sub-1", Code: "MAT101", Description: "Calculus", DateAdded: added}
	require.NoError(t, repo.Create(context.Background(), nil, subject))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryCreateMapsUniqueViolation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subjects")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "subjects_code_description_key"})

	err := repo.Create(context.Background(), nil, &models.Subject{Code: "MAT101", Description: "Calculus"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUniqueViolation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryExistsByCodeDescription(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM subjects WHERE code = ? AND description = ? AND id <> ? LIMIT 1")).
		WithArgs("MAT101", "Calculus", "sub-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByCodeDescription(context.Background(), nil, "MAT101", "Calculus", "sub-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryDeleteNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM subjects WHERE id = ?")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
