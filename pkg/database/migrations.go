package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is written in the subset of SQL shared by PostgreSQL and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		description TEXT NOT NULL,
		date_added TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS subjects_code_description_key ON subjects (code, description)`,
	`CREATE TABLE IF NOT EXISTS instructors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS instructors_name_key ON instructors (name)`,
	`CREATE TABLE IF NOT EXISTS subject_instructor_cross_refs (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL REFERENCES subjects (id),
		instructor_id TEXT REFERENCES instructors (id),
		hue INTEGER NOT NULL CHECK (hue >= 0 AND hue < 360)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS cross_refs_subject_instructor_key ON subject_instructor_cross_refs (subject_id, COALESCE(instructor_id, ''))`,
	`CREATE TABLE IF NOT EXISTS timetables (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		number_of_days INTEGER NOT NULL CHECK (number_of_days BETWEEN 1 AND 7),
		starting_day TEXT NOT NULL,
		start_time INTEGER NOT NULL CHECK (start_time BETWEEN 0 AND 23),
		end_time INTEGER NOT NULL CHECK (end_time BETWEEN 0 AND 23),
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CHECK (start_time < end_time)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		timetable_id TEXT NOT NULL REFERENCES timetables (id) ON DELETE CASCADE,
		day_of_week TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		kind TEXT NOT NULL,
		cross_ref_id TEXT REFERENCES subject_instructor_cross_refs (id),
		label TEXT,
		CHECK (
			(kind = 'SUBJECT' AND cross_ref_id IS NOT NULL AND label IS NULL)
			OR (kind = 'BREAK' AND cross_ref_id IS NULL)
			OR (kind IN ('VACANT', 'EMPTY') AND cross_ref_id IS NULL AND label IS NULL)
		),
		UNIQUE (timetable_id, day_of_week, start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_cross_ref_idx ON sessions (cross_ref_id)`,
}

// Migrate creates the schema when missing. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
