package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// InstructorRepository manages instructor persistence.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs the repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

func (r *InstructorRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns instructors ordered by name.
func (r *InstructorRepository) List(ctx context.Context, filter models.InstructorFilter) ([]models.Instructor, int, error) {
	base := "FROM instructors WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		base += " AND LOWER(name) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT id, name %s ORDER BY name %s LIMIT %d OFFSET %d", base, order, size, (page-1)*size)
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list instructors: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count instructors: %w", err)
	}
	return instructors, total, nil
}

// FindByID loads an instructor.
func (r *InstructorRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Instructor, error) {
	target := r.exec(exec)
	var instructor models.Instructor
	if err := sqlx.GetContext(ctx, target, &instructor, target.Rebind(`SELECT id, name FROM instructors WHERE id = ?`), id); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// ExistsByName checks the case-sensitive uniqueness of an instructor name.
func (r *InstructorRepository) ExistsByName(ctx context.Context, exec sqlx.ExtContext, name, excludeID string) (bool, error) {
	target := r.exec(exec)
	query := "SELECT 1 FROM instructors WHERE name = ?"
	args := []interface{}{name}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}

	var exists int
	if err := sqlx.GetContext(ctx, target, &exists, target.Rebind(query+" LIMIT 1"), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check instructor name: %w", err)
	}
	return true, nil
}

// Create inserts an instructor.
func (r *InstructorRepository) Create(ctx context.Context, exec sqlx.ExtContext, instructor *models.Instructor) error {
	if instructor.ID == "" {
		instructor.ID = uuid.NewString()
	}
	const query = `INSERT INTO instructors (id, name) VALUES (:id, :name)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, instructor); err != nil {
		return fmt.Errorf("create instructor: %w", translate(err))
	}
	return nil
}

// Update renames an instructor.
func (r *InstructorRepository) Update(ctx context.Context, instructor *models.Instructor) error {
	const query = `UPDATE instructors SET name = :name WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, instructor)
	if err != nil {
		return fmt.Errorf("update instructor: %w", translate(err))
	}
	return requireAffected(result, "update instructor")
}

// Delete removes an instructor.
func (r *InstructorRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM instructors WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete instructor: %w", err)
	}
	return requireAffected(result, "delete instructor")
}
