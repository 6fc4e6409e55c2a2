package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

const timetableColumns = "id, name, number_of_days, starting_day, start_time, end_time, created_at, updated_at"

// TimetableRepository persists timetable headers. Cells live in SessionRepository.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns timetables with pagination metadata.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	base := "FROM timetables WHERE 1=1"
	var args []interface{}
	if filter.Search != "" {
		base += " AND LOWER(name) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":       true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", timetableColumns, base, sortBy, order, size, (page-1)*size)
	var timetables []models.Timetable
	if err := r.db.SelectContext(ctx, &timetables, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) "+base), args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}
	return timetables, total, nil
}

// FindByID loads a timetable.
func (r *TimetableRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Timetable, error) {
	target := r.exec(exec)
	var timetable models.Timetable
	query := target.Rebind("SELECT " + timetableColumns + " FROM timetables WHERE id = ?")
	if err := sqlx.GetContext(ctx, target, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}

// Create inserts a timetable header, keeping preset id and timestamps.
func (r *TimetableRepository) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	if timetable.ID == "" {
		timetable.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if timetable.CreatedAt.IsZero() {
		timetable.CreatedAt = now
	}
	if timetable.UpdatedAt.IsZero() {
		timetable.UpdatedAt = now
	}

	const query = `INSERT INTO timetables (id, name, number_of_days, starting_day, start_time, end_time, created_at, updated_at)
VALUES (:id, :name, :number_of_days, :starting_day, :start_time, :end_time, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timetable); err != nil {
		return fmt.Errorf("create timetable: %w", translate(err))
	}
	return nil
}

// Update rewrites the timetable header.
func (r *TimetableRepository) Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	timetable.UpdatedAt = time.Now().UTC()
	const query = `UPDATE timetables SET name = :name, number_of_days = :number_of_days, starting_day = :starting_day,
start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, timetable)
	if err != nil {
		return fmt.Errorf("update timetable: %w", err)
	}
	return requireAffected(result, "update timetable")
}

// Delete removes a timetable header.
func (r *TimetableRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM timetables WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	return requireAffected(result, "delete timetable")
}
