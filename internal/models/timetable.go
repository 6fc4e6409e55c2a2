package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayOfWeek names a weekday. Values are stored and encoded by name so that
// reordering never changes their meaning.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

// Week lists the weekdays in ISO order.
var Week = []DayOfWeek{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// ParseDayOfWeek accepts a weekday name in any case.
func ParseDayOfWeek(raw string) (DayOfWeek, error) {
	day := DayOfWeek(strings.ToUpper(strings.TrimSpace(raw)))
	if !day.Valid() {
		return "", fmt.Errorf("invalid day of week %q", raw)
	}
	return day, nil
}

// Valid reports whether d is one of the seven weekday names.
func (d DayOfWeek) Valid() bool {
	return d.index() >= 0
}

// Add returns the weekday n days after d, wrapping around the week.
func (d DayOfWeek) Add(n int) DayOfWeek {
	idx := d.index()
	if idx < 0 {
		return d
	}
	return Week[((idx+n)%len(Week)+len(Week))%len(Week)]
}

func (d DayOfWeek) index() int {
	for i, day := range Week {
		if day == d {
			return i
		}
	}
	return -1
}

// HourOfDay is a whole-hour time of day in the range 0..23.
type HourOfDay int

// ParseHourOfDay parses "HH", "HH:00" or "HH:00:00".
func ParseHourOfDay(raw string) (HourOfDay, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.Split(raw, ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	for _, rest := range parts[1:] {
		if n, err := strconv.Atoi(rest); err != nil || n != 0 {
			return 0, fmt.Errorf("time %q is not on a whole hour", raw)
		}
	}
	h := HourOfDay(hour)
	if !h.Valid() {
		return 0, fmt.Errorf("hour %d out of range", hour)
	}
	return h, nil
}

// Valid reports whether h lies within a day.
func (h HourOfDay) Valid() bool {
	return h >= 0 && h <= 23
}

// String formats the hour as HH:00.
func (h HourOfDay) String() string {
	return fmt.Sprintf("%02d:00", int(h))
}

// MarshalText implements encoding.TextMarshaler.
func (h HourOfDay) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HourOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseHourOfDay(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Timetable is a weekly grid of whole-hour periods.
type Timetable struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	NumberOfDays int       `db:"number_of_days" json:"number_of_days"`
	StartingDay  DayOfWeek `db:"starting_day" json:"starting_day"`
	StartTime    HourOfDay `db:"start_time" json:"start_time"`
	EndTime      HourOfDay `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Validate checks the layout invariants.
func (t Timetable) Validate() error {
	if t.NumberOfDays < 1 || t.NumberOfDays > len(Week) {
		return fmt.Errorf("number of days must be between 1 and %d", len(Week))
	}
	if !t.StartingDay.Valid() {
		return fmt.Errorf("invalid starting day %q", t.StartingDay)
	}
	if !t.StartTime.Valid() || !t.EndTime.Valid() {
		return fmt.Errorf("start and end time must be whole hours of the day")
	}
	if t.StartTime >= t.EndTime {
		return fmt.Errorf("start time must be before end time")
	}
	return nil
}

// PeriodCount is the number of one-hour periods per day.
func (t Timetable) PeriodCount() int {
	if t.EndTime <= t.StartTime {
		return 0
	}
	return int(t.EndTime - t.StartTime)
}

// SessionCount is the number of cells in the grid.
func (t Timetable) SessionCount() int {
	return t.NumberOfDays * t.PeriodCount()
}

// Days returns the consecutive weekdays covered by the timetable.
func (t Timetable) Days() []DayOfWeek {
	days := make([]DayOfWeek, 0, t.NumberOfDays)
	for i := 0; i < t.NumberOfDays; i++ {
		days = append(days, t.StartingDay.Add(i))
	}
	return days
}

// DayIndex returns the column of day within the timetable, or -1.
func (t Timetable) DayIndex(day DayOfWeek) int {
	for i, d := range t.Days() {
		if d == day {
			return i
		}
	}
	return -1
}

// PeriodStarts returns the start hour of every period.
func (t Timetable) PeriodStarts() []HourOfDay {
	starts := make([]HourOfDay, 0, t.PeriodCount())
	for h := t.StartTime; h < t.EndTime; h++ {
		starts = append(starts, h)
	}
	return starts
}

// Contains reports whether the cell (day, start) is part of the grid.
func (t Timetable) Contains(day DayOfWeek, start HourOfDay) bool {
	return t.DayIndex(day) >= 0 && start >= t.StartTime && start < t.EndTime
}

// TimetableFilter captures supported filters for listing timetables.
type TimetableFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
