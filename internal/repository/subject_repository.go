package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

const subjectColumns = "id, code, description, date_added"

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns subjects matching filters with pagination metadata.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var args []interface{}

	if filter.Search != "" {
		base += " AND (LOWER(code) LIKE ? OR LOWER(description) LIKE ?)"
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term)
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"code":        true,
		"description": true,
		"date_added":  true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "date_added"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", subjectColumns, base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Subject, error) {
	target := r.exec(exec)
	query := target.Rebind("SELECT " + subjectColumns + " FROM subjects WHERE id = ?")
	var subject models.Subject
	if err := sqlx.GetContext(ctx, target, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByCodeDescription checks uniqueness of the (code, description) pair.
func (r *SubjectRepository) ExistsByCodeDescription(ctx context.Context, exec sqlx.ExtContext, code, description, excludeID string) (bool, error) {
	target := r.exec(exec)
	query := "SELECT 1 FROM subjects WHERE code = ? AND description = ?"
	args := []interface{}{code, description}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}

	var exists int
	if err := sqlx.GetContext(ctx, target, &exists, target.Rebind(query+" LIMIT 1"), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return true, nil
}

// Create persists a new subject. Restoring a deleted subject passes its
// original id and date.
func (r *SubjectRepository) Create(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	if subject.DateAdded.IsZero() {
		subject.DateAdded = time.Now().UTC()
	}

	const query = `INSERT INTO subjects (id, code, description, date_added) VALUES (:id, :code, :description, :date_added)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subject); err != nil {
		return fmt.Errorf("create subject: %w", translate(err))
	}
	return nil
}

// Update modifies a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	const query = `UPDATE subjects SET code = :code, description = :description WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, subject)
	if err != nil {
		return fmt.Errorf("update subject: %w", translate(err))
	}
	return requireAffected(result, "update subject")
}

// Delete removes a subject record.
func (r *SubjectRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM subjects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return requireAffected(result, "delete subject")
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
