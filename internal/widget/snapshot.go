package widget

import "github.com/noah-isme/timetable-api/internal/models"

// FromView flattens a consolidated view into a snapshot, inlining the catalog
// data of every subject block.
func FromView(view models.TimetableView) models.WidgetSnapshot {
	t := view.Timetable
	snapshot := models.WidgetSnapshot{
		TimetableID:  t.ID,
		Name:         t.Name,
		NumberOfDays: t.NumberOfDays,
		StartingDay:  t.StartingDay,
		StartTime:    t.StartTime,
		EndTime:      t.EndTime,
		Days:         make([]models.WidgetDay, 0, len(view.Days)),
	}

	for i, day := range view.Days {
		var schedules []models.Schedule
		if i < len(view.Schedules) {
			schedules = view.Schedules[i]
		}
		blocks := make([]models.WidgetBlock, 0, len(schedules))
		for _, s := range schedules {
			block := models.WidgetBlock{
				StartTime:  s.StartTime,
				PeriodSpan: s.PeriodSpan,
				Content:    models.ContentOrEmpty(s.Content),
			}
			if s.Entry != nil {
				block.SubjectCode = s.Entry.Subject.Code
				block.SubjectDescription = s.Entry.Subject.Description
				if s.Entry.Instructor != nil {
					name := s.Entry.Instructor.Name
					block.InstructorName = &name
				}
				hue := s.Entry.Hue
				block.Hue = &hue
			}
			blocks = append(blocks, block)
		}
		snapshot.Days = append(snapshot.Days, models.WidgetDay{Day: day, Blocks: blocks})
	}
	return snapshot
}
