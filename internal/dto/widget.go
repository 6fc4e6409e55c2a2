package dto

import "github.com/noah-isme/timetable-api/internal/models"

// WidgetSelectRequest chooses the timetable shown by the widget. An empty id
// clears the selection.
type WidgetSelectRequest struct {
	TimetableID string `json:"timetable_id"`
}

// WidgetSnapshot is the JSON form of a decoded widget snapshot.
type WidgetSnapshot struct {
	TimetableID  string           `json:"timetable_id"`
	Name         string           `json:"name"`
	NumberOfDays int              `json:"number_of_days"`
	StartingDay  models.DayOfWeek `json:"starting_day"`
	StartTime    models.HourOfDay `json:"start_time"`
	EndTime      models.HourOfDay `json:"end_time"`
	Days         []WidgetDay      `json:"days"`
}

type WidgetDay struct {
	Day    models.DayOfWeek `json:"day"`
	Blocks []WidgetBlock    `json:"blocks"`
}

type WidgetBlock struct {
	StartTime          models.HourOfDay          `json:"start_time"`
	PeriodSpan         int                       `json:"period_span"`
	Content            models.SessionContentJSON `json:"content"`
	SubjectCode        string                    `json:"subject_code,omitempty"`
	SubjectDescription string                    `json:"subject_description,omitempty"`
	InstructorName     *string                   `json:"instructor_name,omitempty"`
	Hue                *int                      `json:"hue,omitempty"`
}

// NewWidgetSnapshot converts a snapshot for the HTTP layer. A nil snapshot
// yields nil.
func NewWidgetSnapshot(s *models.WidgetSnapshot) *WidgetSnapshot {
	if s == nil {
		return nil
	}
	out := &WidgetSnapshot{
		TimetableID:  s.TimetableID,
		Name:         s.Name,
		NumberOfDays: s.NumberOfDays,
		StartingDay:  s.StartingDay,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Days:         make([]WidgetDay, 0, len(s.Days)),
	}
	for _, day := range s.Days {
		blocks := make([]WidgetBlock, 0, len(day.Blocks))
		for _, b := range day.Blocks {
			blocks = append(blocks, WidgetBlock{
				StartTime:          b.StartTime,
				PeriodSpan:         b.PeriodSpan,
				Content:            models.ContentToJSON(b.Content),
				SubjectCode:        b.SubjectCode,
				SubjectDescription: b.SubjectDescription,
				InstructorName:     b.InstructorName,
				Hue:                b.Hue,
			})
		}
		out.Days = append(out.Days, WidgetDay{Day: day.Day, Blocks: blocks})
	}
	return out
}
