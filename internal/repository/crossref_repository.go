package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

const crossRefColumns = "id, subject_id, instructor_id, hue"

const crossRefDetailSelect = `SELECT c.id, c.subject_id, c.instructor_id, c.hue,
s.code AS subject_code, s.description AS subject_description, s.date_added AS subject_date_added,
i.name AS instructor_name
FROM subject_instructor_cross_refs c
JOIN subjects s ON s.id = c.subject_id
LEFT JOIN instructors i ON i.id = c.instructor_id`

// CrossRefRepository persists subject/instructor pairings.
type CrossRefRepository struct {
	db *sqlx.DB
}

// NewCrossRefRepository constructs the repository.
func NewCrossRefRepository(db *sqlx.DB) *CrossRefRepository {
	return &CrossRefRepository{db: db}
}

func (r *CrossRefRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

type crossRefDetailRow struct {
	ID                 string    `db:"id"`
	SubjectID          string    `db:"subject_id"`
	InstructorID       *string   `db:"instructor_id"`
	Hue                int       `db:"hue"`
	SubjectCode        string    `db:"subject_code"`
	SubjectDescription string    `db:"subject_description"`
	SubjectDateAdded   time.Time `db:"subject_date_added"`
	InstructorName     *string   `db:"instructor_name"`
}

func (row crossRefDetailRow) toModel() models.CrossRefDetail {
	detail := models.CrossRefDetail{
		CrossRef: models.CrossRef{
			ID:           row.ID,
			SubjectID:    row.SubjectID,
			InstructorID: row.InstructorID,
			Hue:          row.Hue,
		},
		Subject: models.Subject{
			ID:          row.SubjectID,
			Code:        row.SubjectCode,
			Description: row.SubjectDescription,
			DateAdded:   row.SubjectDateAdded,
		},
	}
	if row.InstructorID != nil && row.InstructorName != nil {
		detail.Instructor = &models.Instructor{ID: *row.InstructorID, Name: *row.InstructorName}
	}
	return detail
}

// List returns resolved cross-refs ordered by subject then instructor.
func (r *CrossRefRepository) List(ctx context.Context, filter models.CrossRefFilter) ([]models.CrossRefDetail, error) {
	query := crossRefDetailSelect + " WHERE 1=1"
	var args []interface{}
	if filter.SubjectID != "" {
		query += " AND c.subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.InstructorID != "" {
		query += " AND c.instructor_id = ?"
		args = append(args, filter.InstructorID)
	}
	query += " ORDER BY s.code, s.description, i.name"

	var rows []crossRefDetailRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list cross refs: %w", err)
	}
	return detailsFromRows(rows), nil
}

// FindDetail loads one resolved cross-ref.
func (r *CrossRefRepository) FindDetail(ctx context.Context, id string) (*models.CrossRefDetail, error) {
	var row crossRefDetailRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(crossRefDetailSelect+" WHERE c.id = ?"), id); err != nil {
		return nil, err
	}
	detail := row.toModel()
	return &detail, nil
}

// ListDetailsByIDs resolves the given cross-refs. Unknown ids are skipped.
func (r *CrossRefRepository) ListDetailsByIDs(ctx context.Context, ids []string) ([]models.CrossRefDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(crossRefDetailSelect+" WHERE c.id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("build cross ref lookup: %w", err)
	}
	var rows []crossRefDetailRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("lookup cross refs: %w", err)
	}
	return detailsFromRows(rows), nil
}

// FindByID loads a cross-ref row.
func (r *CrossRefRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.CrossRef, error) {
	target := r.exec(exec)
	var ref models.CrossRef
	query := target.Rebind("SELECT " + crossRefColumns + " FROM subject_instructor_cross_refs WHERE id = ?")
	if err := sqlx.GetContext(ctx, target, &ref, query, id); err != nil {
		return nil, err
	}
	return &ref, nil
}

// ListBySubject returns the cross-refs owned by a subject.
func (r *CrossRefRepository) ListBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) ([]models.CrossRef, error) {
	target := r.exec(exec)
	query := target.Rebind("SELECT " + crossRefColumns + " FROM subject_instructor_cross_refs WHERE subject_id = ? ORDER BY id")
	var refs []models.CrossRef
	if err := sqlx.SelectContext(ctx, target, &refs, query, subjectID); err != nil {
		return nil, fmt.Errorf("list cross refs by subject: %w", err)
	}
	return refs, nil
}

// ListByInstructor returns the cross-refs naming an instructor.
func (r *CrossRefRepository) ListByInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string) ([]models.CrossRef, error) {
	target := r.exec(exec)
	query := target.Rebind("SELECT " + crossRefColumns + " FROM subject_instructor_cross_refs WHERE instructor_id = ? ORDER BY id")
	var refs []models.CrossRef
	if err := sqlx.SelectContext(ctx, target, &refs, query, instructorID); err != nil {
		return nil, fmt.Errorf("list cross refs by instructor: %w", err)
	}
	return refs, nil
}

// ListByIDs returns the cross-refs that still exist among ids.
func (r *CrossRefRepository) ListByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]models.CrossRef, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In("SELECT "+crossRefColumns+" FROM subject_instructor_cross_refs WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("build cross ref lookup: %w", err)
	}
	var refs []models.CrossRef
	if err := sqlx.SelectContext(ctx, target, &refs, target.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list cross refs by id: %w", err)
	}
	return refs, nil
}

// ExistsPair reports whether another cross-ref already binds the subject to
// the instructor. A nil instructor is matched against other nil instructors.
func (r *CrossRefRepository) ExistsPair(ctx context.Context, exec sqlx.ExtContext, subjectID string, instructorID *string, excludeID string) (bool, error) {
	target := r.exec(exec)
	query := "SELECT 1 FROM subject_instructor_cross_refs WHERE subject_id = ? AND COALESCE(instructor_id, '') = ?"
	args := []interface{}{subjectID, stringValue(instructorID)}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}

	var exists int
	if err := sqlx.GetContext(ctx, target, &exists, target.Rebind(query+" LIMIT 1"), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check cross ref pair: %w", err)
	}
	return true, nil
}

// Create inserts a cross-ref, keeping a preset id.
func (r *CrossRefRepository) Create(ctx context.Context, exec sqlx.ExtContext, ref *models.CrossRef) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	const query = `INSERT INTO subject_instructor_cross_refs (id, subject_id, instructor_id, hue) VALUES (:id, :subject_id, :instructor_id, :hue)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, ref); err != nil {
		return fmt.Errorf("create cross ref: %w", translate(err))
	}
	return nil
}

// Update rewrites the pairing and hue.
func (r *CrossRefRepository) Update(ctx context.Context, ref *models.CrossRef) error {
	const query = `UPDATE subject_instructor_cross_refs SET subject_id = :subject_id, instructor_id = :instructor_id, hue = :hue WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, ref)
	if err != nil {
		return fmt.Errorf("update cross ref: %w", translate(err))
	}
	return requireAffected(result, "update cross ref")
}

// Delete removes a single cross-ref.
func (r *CrossRefRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM subject_instructor_cross_refs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete cross ref: %w", err)
	}
	return requireAffected(result, "delete cross ref")
}

// DeleteBySubject removes every cross-ref of a subject.
func (r *CrossRefRepository) DeleteBySubject(ctx context.Context, exec sqlx.ExtContext, subjectID string) (int64, error) {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM subject_instructor_cross_refs WHERE subject_id = ?`), subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete cross refs by subject: %w", err)
	}
	return result.RowsAffected()
}

// ClearInstructor detaches an instructor from all of their cross-refs.
func (r *CrossRefRepository) ClearInstructor(ctx context.Context, exec sqlx.ExtContext, instructorID string) (int64, error) {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`UPDATE subject_instructor_cross_refs SET instructor_id = NULL WHERE instructor_id = ?`), instructorID)
	if err != nil {
		return 0, fmt.Errorf("clear cross ref instructor: %w", translate(err))
	}
	return result.RowsAffected()
}

// AssignInstructor re-attaches an instructor to instructor-less cross-refs.
func (r *CrossRefRepository) AssignInstructor(ctx context.Context, exec sqlx.ExtContext, ids []string, instructorID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In(`UPDATE subject_instructor_cross_refs SET instructor_id = ? WHERE id IN (?) AND instructor_id IS NULL`, instructorID, ids)
	if err != nil {
		return 0, fmt.Errorf("build instructor assignment: %w", err)
	}
	result, err := target.ExecContext(ctx, target.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("assign cross ref instructor: %w", translate(err))
	}
	return result.RowsAffected()
}

func detailsFromRows(rows []crossRefDetailRow) []models.CrossRefDetail {
	details := make([]models.CrossRefDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, row.toModel())
	}
	return details
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
