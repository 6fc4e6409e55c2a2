package models

// WidgetSnapshot is the self-contained timetable view handed to viewers that
// cannot query the store.
type WidgetSnapshot struct {
	TimetableID  string
	Name         string
	NumberOfDays int
	StartingDay  DayOfWeek
	StartTime    HourOfDay
	EndTime      HourOfDay
	Days         []WidgetDay
}

// WidgetDay is one column of the snapshot.
type WidgetDay struct {
	Day    DayOfWeek
	Blocks []WidgetBlock
}

// WidgetBlock is a consolidated cell with its catalog data inlined.
type WidgetBlock struct {
	StartTime          HourOfDay
	PeriodSpan         int
	Content            SessionContent
	SubjectCode        string
	SubjectDescription string
	InstructorName     *string
	Hue                *int
}
