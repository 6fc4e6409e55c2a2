package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestFromViewInlinesEntries(t *testing.T) {
	ana := "ana"
	view := models.TimetableView{
		Timetable: models.Timetable{ID: "tt", Name: "Spring", NumberOfDays: 2, StartingDay: models.Sunday, StartTime: 9, EndTime: 12},
		Days:      []models.DayOfWeek{models.Sunday, models.Monday},
		Schedules: [][]models.Schedule{
			{
				{DayOfWeek: models.Sunday, StartTime: 9, PeriodSpan: 2, Content: models.SubjectContent{CrossRefID: "r1"}, Entry: &models.CrossRefDetail{
					CrossRef:   models.CrossRef{ID: "r1", SubjectID: "s1", InstructorID: &ana, Hue: 210},
					Subject:    models.Subject{ID: "s1", Code: "BIO", Description: "Biology"},
					Instructor: &models.Instructor{ID: ana, Name: "Ana"},
				}},
				{DayOfWeek: models.Sunday, StartTime: 11, PeriodSpan: 1, Content: models.VacantContent{}},
			},
			{},
		},
	}

	snapshot := FromView(view)
	require.Len(t, snapshot.Days, 2)
	assert.Equal(t, models.Sunday, snapshot.Days[0].Day)

	first := snapshot.Days[0].Blocks[0]
	assert.Equal(t, "BIO", first.SubjectCode)
	assert.Equal(t, "Biology", first.SubjectDescription)
	require.NotNil(t, first.InstructorName)
	assert.Equal(t, "Ana", *first.InstructorName)
	require.NotNil(t, first.Hue)
	assert.Equal(t, 210, *first.Hue)
	assert.Equal(t, 2, first.PeriodSpan)

	assert.Nil(t, snapshot.Days[0].Blocks[1].Hue)
	assert.NotNil(t, snapshot.Days[1].Blocks)
	assert.Empty(t, snapshot.Days[1].Blocks)

	text, err := Encode(snapshot)
	require.NoError(t, err)
	decoded, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, snapshot, decoded)
}
