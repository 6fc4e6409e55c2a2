package models

import "encoding/json"

// Schedule is a rendering block: one or more consecutive equal sessions of a
// day merged into a cell spanning PeriodSpan periods.
type Schedule struct {
	DayOfWeek  DayOfWeek
	StartTime  HourOfDay
	PeriodSpan int
	Content    SessionContent
	// Entry is set for Subject blocks once resolved against the catalog.
	Entry *CrossRefDetail
}

type scheduleJSON struct {
	DayOfWeek  DayOfWeek          `json:"day_of_week"`
	StartTime  HourOfDay          `json:"start_time"`
	PeriodSpan int                `json:"period_span"`
	Content    SessionContentJSON `json:"content"`
	Entry      *CrossRefDetail    `json:"entry,omitempty"`
}

// MarshalJSON encodes the block with tagged content.
func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		DayOfWeek:  s.DayOfWeek,
		StartTime:  s.StartTime,
		PeriodSpan: s.PeriodSpan,
		Content:    ContentToJSON(s.Content),
		Entry:      s.Entry,
	})
}

// UnmarshalJSON decodes the tagged content form.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var wire scheduleJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := wire.Content.Content()
	if err != nil {
		return err
	}
	*s = Schedule{
		DayOfWeek:  wire.DayOfWeek,
		StartTime:  wire.StartTime,
		PeriodSpan: wire.PeriodSpan,
		Content:    content,
		Entry:      wire.Entry,
	}
	return nil
}

// TimetableView is what a renderer needs for one timetable: the day labels,
// the period start times and the consolidated blocks of every day.
type TimetableView struct {
	Timetable    Timetable    `json:"timetable"`
	Days         []DayOfWeek  `json:"days"`
	PeriodStarts []HourOfDay  `json:"period_starts"`
	Schedules    [][]Schedule `json:"schedules"`
}
