package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

const sessionColumns = "id, timetable_id, day_of_week, start_time, kind, cross_ref_id, label"

// SessionRepository persists timetable cells.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// sessionRow is the flattened column form of models.Session.
type sessionRow struct {
	ID          string             `db:"id"`
	TimetableID string             `db:"timetable_id"`
	DayOfWeek   models.DayOfWeek   `db:"day_of_week"`
	StartTime   models.HourOfDay   `db:"start_time"`
	Kind        models.SessionKind `db:"kind"`
	CrossRefID  *string            `db:"cross_ref_id"`
	Label       *string            `db:"label"`
}

func newSessionRow(s models.Session) sessionRow {
	kind, crossRefID, label := models.ContentFields(s.Content)
	return sessionRow{
		ID:          s.ID,
		TimetableID: s.TimetableID,
		DayOfWeek:   s.DayOfWeek,
		StartTime:   s.StartTime,
		Kind:        kind,
		CrossRefID:  crossRefID,
		Label:       label,
	}
}

func (row sessionRow) toModel() (models.Session, error) {
	content, err := models.ContentFromFields(row.Kind, row.CrossRefID, row.Label)
	if err != nil {
		return models.Session{}, fmt.Errorf("session %s: %w", row.ID, err)
	}
	return models.Session{
		ID:          row.ID,
		TimetableID: row.TimetableID,
		DayOfWeek:   row.DayOfWeek,
		StartTime:   row.StartTime,
		Content:     content,
	}, nil
}

func sessionsFromRows(rows []sessionRow) ([]models.Session, error) {
	sessions := make([]models.Session, 0, len(rows))
	for _, row := range rows {
		s, err := row.toModel()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// ListByTimetable returns every cell of a timetable ordered by period.
func (r *SessionRepository) ListByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) ([]models.Session, error) {
	target := r.exec(exec)
	query := target.Rebind("SELECT " + sessionColumns + " FROM sessions WHERE timetable_id = ? ORDER BY day_of_week, start_time")
	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, target, &rows, query, timetableID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessionsFromRows(rows)
}

// ListByCrossRefs returns the cells in any timetable pointing at the given
// cross-refs.
func (r *SessionRepository) ListByCrossRefs(ctx context.Context, exec sqlx.ExtContext, crossRefIDs []string) ([]models.Session, error) {
	if len(crossRefIDs) == 0 {
		return nil, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In("SELECT "+sessionColumns+" FROM sessions WHERE cross_ref_id IN (?) ORDER BY timetable_id, day_of_week, start_time", crossRefIDs)
	if err != nil {
		return nil, fmt.Errorf("build session lookup: %w", err)
	}
	var rows []sessionRow
	if err := sqlx.SelectContext(ctx, target, &rows, target.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list sessions by cross ref: %w", err)
	}
	return sessionsFromRows(rows)
}

// InsertBatch inserts cells, assigning ids to those without one.
func (r *SessionRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, sessions []models.Session) error {
	target := r.exec(exec)
	const query = `INSERT INTO sessions (id, timetable_id, day_of_week, start_time, kind, cross_ref_id, label)
VALUES (:id, :timetable_id, :day_of_week, :start_time, :kind, :cross_ref_id, :label)`
	for i := range sessions {
		if sessions[i].ID == "" {
			sessions[i].ID = uuid.NewString()
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, newSessionRow(sessions[i])); err != nil {
			return fmt.Errorf("insert session: %w", translate(err))
		}
	}
	return nil
}

// ClearCrossRefs converts every cell pointing at the cross-refs into Empty.
func (r *SessionRepository) ClearCrossRefs(ctx context.Context, exec sqlx.ExtContext, crossRefIDs []string) (int64, error) {
	if len(crossRefIDs) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In(`UPDATE sessions SET kind = ?, cross_ref_id = NULL, label = NULL WHERE cross_ref_id IN (?)`, models.SessionKindEmpty, crossRefIDs)
	if err != nil {
		return 0, fmt.Errorf("build session clear: %w", err)
	}
	result, err := target.ExecContext(ctx, target.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	return result.RowsAffected()
}

// Restore writes the content of s into the cell with the same day and start
// time. It reports how many cells matched.
func (r *SessionRepository) Restore(ctx context.Context, exec sqlx.ExtContext, s models.Session) (int64, error) {
	target := r.exec(exec)
	row := newSessionRow(s)
	query := target.Rebind(`UPDATE sessions SET kind = ?, cross_ref_id = ?, label = ? WHERE timetable_id = ? AND day_of_week = ? AND start_time = ?`)
	result, err := target.ExecContext(ctx, query, row.Kind, row.CrossRefID, row.Label, row.TimetableID, row.DayOfWeek, row.StartTime)
	if err != nil {
		return 0, fmt.Errorf("restore session: %w", err)
	}
	return result.RowsAffected()
}

// SetContent fills the periods [from, to) of one day with content.
func (r *SessionRepository) SetContent(ctx context.Context, exec sqlx.ExtContext, timetableID string, day models.DayOfWeek, from, to models.HourOfDay, content models.SessionContent) (int64, error) {
	target := r.exec(exec)
	kind, crossRefID, label := models.ContentFields(content)
	query := target.Rebind(`UPDATE sessions SET kind = ?, cross_ref_id = ?, label = ? WHERE timetable_id = ? AND day_of_week = ? AND start_time >= ? AND start_time < ?`)
	result, err := target.ExecContext(ctx, query, kind, crossRefID, label, timetableID, day, from, to)
	if err != nil {
		return 0, fmt.Errorf("set session content: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByIDs removes specific cells, used when a layout shrinks.
func (r *SessionRepository) DeleteByIDs(ctx context.Context, exec sqlx.ExtContext, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	target := r.exec(exec)
	query, args, err := sqlx.In(`DELETE FROM sessions WHERE id IN (?)`, ids)
	if err != nil {
		return 0, fmt.Errorf("build session delete: %w", err)
	}
	result, err := target.ExecContext(ctx, target.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return result.RowsAffected()
}

// DeleteByTimetable removes all cells of a timetable.
func (r *SessionRepository) DeleteByTimetable(ctx context.Context, exec sqlx.ExtContext, timetableID string) (int64, error) {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM sessions WHERE timetable_id = ?`), timetableID)
	if err != nil {
		return 0, fmt.Errorf("delete timetable sessions: %w", err)
	}
	return result.RowsAffected()
}
