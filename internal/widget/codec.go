// Package widget encodes timetable snapshots for viewers that cannot query the
// live store.
package widget

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// Version is written into every snapshot. Decode refuses other versions.
const Version = 2

type snapshotDoc struct {
	Version   int          `json:"version"`
	Timetable timetableDoc `json:"timetable"`
	Days      []dayDoc     `json:"days"`
}

type timetableDoc struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	NumberOfDays int    `json:"number_of_days"`
	StartingDay  string `json:"starting_day"`
	StartHour    int    `json:"start_hour"`
	EndHour      int    `json:"end_hour"`
}

type dayDoc struct {
	Day    string     `json:"day"`
	Blocks []blockDoc `json:"blocks"`
}

type blockDoc struct {
	StartHour          int                       `json:"start_hour"`
	PeriodSpan         int                       `json:"period_span"`
	Content            models.SessionContentJSON `json:"content"`
	SubjectCode        string                    `json:"subject_code,omitempty"`
	SubjectDescription string                    `json:"subject_description,omitempty"`
	InstructorName     *string                   `json:"instructor_name,omitempty"`
	Hue                *int                      `json:"hue,omitempty"`
}

// Encode renders a snapshot as versioned JSON. Times become integer hours and
// days are written by name.
func Encode(s models.WidgetSnapshot) (string, error) {
	if err := validateHour(s.StartTime); err != nil {
		return "", err
	}
	if err := validateHour(s.EndTime); err != nil {
		return "", err
	}
	if !s.StartingDay.Valid() {
		return "", codecError(fmt.Errorf("invalid starting day %q", s.StartingDay))
	}

	doc := snapshotDoc{
		Version: Version,
		Timetable: timetableDoc{
			ID:           s.TimetableID,
			Name:         s.Name,
			NumberOfDays: s.NumberOfDays,
			StartingDay:  string(s.StartingDay),
			StartHour:    int(s.StartTime),
			EndHour:      int(s.EndTime),
		},
	}
	if s.Days != nil {
		doc.Days = make([]dayDoc, 0, len(s.Days))
	}
	for _, day := range s.Days {
		if !day.Day.Valid() {
			return "", codecError(fmt.Errorf("invalid day %q", day.Day))
		}
		d := dayDoc{Day: string(day.Day)}
		if day.Blocks != nil {
			d.Blocks = make([]blockDoc, 0, len(day.Blocks))
		}
		for _, block := range day.Blocks {
			if block.Content == nil {
				return "", codecError(fmt.Errorf("block at %s on %s has no content", block.StartTime, day.Day))
			}
			if err := validateHour(block.StartTime); err != nil {
				return "", err
			}
			d.Blocks = append(d.Blocks, blockDoc{
				StartHour:          int(block.StartTime),
				PeriodSpan:         block.PeriodSpan,
				Content:            models.ContentToJSON(block.Content),
				SubjectCode:        block.SubjectCode,
				SubjectDescription: block.SubjectDescription,
				InstructorName:     block.InstructorName,
				Hue:                block.Hue,
			})
		}
		doc.Days = append(doc.Days, d)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", codecError(err)
	}
	return string(raw), nil
}

// Decode parses text produced by Encode.
func Decode(text string) (models.WidgetSnapshot, error) {
	var doc snapshotDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return models.WidgetSnapshot{}, codecError(err)
	}
	if doc.Version != Version {
		return models.WidgetSnapshot{}, codecError(fmt.Errorf("unsupported snapshot version %d", doc.Version))
	}

	startingDay, err := models.ParseDayOfWeek(doc.Timetable.StartingDay)
	if err != nil {
		return models.WidgetSnapshot{}, codecError(err)
	}
	start, err := hour(doc.Timetable.StartHour)
	if err != nil {
		return models.WidgetSnapshot{}, err
	}
	end, err := hour(doc.Timetable.EndHour)
	if err != nil {
		return models.WidgetSnapshot{}, err
	}

	snapshot := models.WidgetSnapshot{
		TimetableID:  doc.Timetable.ID,
		Name:         doc.Timetable.Name,
		NumberOfDays: doc.Timetable.NumberOfDays,
		StartingDay:  startingDay,
		StartTime:    start,
		EndTime:      end,
	}
	if doc.Days != nil {
		snapshot.Days = make([]models.WidgetDay, 0, len(doc.Days))
	}
	for _, d := range doc.Days {
		day, err := models.ParseDayOfWeek(d.Day)
		if err != nil {
			return models.WidgetSnapshot{}, codecError(err)
		}
		wd := models.WidgetDay{Day: day}
		if d.Blocks != nil {
			wd.Blocks = make([]models.WidgetBlock, 0, len(d.Blocks))
		}
		for _, b := range d.Blocks {
			content, err := b.Content.Content()
			if err != nil {
				return models.WidgetSnapshot{}, codecError(err)
			}
			startHour, err := hour(b.StartHour)
			if err != nil {
				return models.WidgetSnapshot{}, err
			}
			wd.Blocks = append(wd.Blocks, models.WidgetBlock{
				StartTime:          startHour,
				PeriodSpan:         b.PeriodSpan,
				Content:            content,
				SubjectCode:        b.SubjectCode,
				SubjectDescription: b.SubjectDescription,
				InstructorName:     b.InstructorName,
				Hue:                b.Hue,
			})
		}
		snapshot.Days = append(snapshot.Days, wd)
	}
	return snapshot, nil
}

// LegacyTimetableID extracts the selected timetable id from the free-form
// document older releases persisted. The text is lower-cased before a
// permissive parse and only timetable.id is kept; it may be a string or a
// number.
func LegacyTimetableID(text string) (string, error) {
	// Older writers sometimes left trailing bytes or cut the document short;
	// only the id path has to parse.
	id := gjson.Get(strings.ToLower(text), "timetable.id")
	switch id.Type {
	case gjson.String:
		if id.Str == "" {
			return "", codecError(fmt.Errorf("legacy widget document has an empty timetable id"))
		}
		return id.Str, nil
	case gjson.Number:
		return id.Raw, nil
	case gjson.Null:
		if !id.Exists() {
			return "", codecError(fmt.Errorf("legacy widget document has no timetable id"))
		}
	}
	return "", codecError(fmt.Errorf("legacy timetable id has unsupported type %s", id.Type))
}

func hour(h int) (models.HourOfDay, error) {
	v := models.HourOfDay(h)
	if err := validateHour(v); err != nil {
		return 0, err
	}
	return v, nil
}

func validateHour(h models.HourOfDay) error {
	if !h.Valid() {
		return codecError(fmt.Errorf("hour %d out of range", int(h)))
	}
	return nil
}

func codecError(err error) error {
	return appErrors.Wrap(err, appErrors.ErrCodec.Code, appErrors.ErrCodec.Status, appErrors.ErrCodec.Message)
}
