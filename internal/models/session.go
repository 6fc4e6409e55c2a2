package models

import (
	"encoding/json"
	"fmt"
)

// SessionKind tags the content variant of a Session.
type SessionKind string

const (
	SessionKindSubject SessionKind = "SUBJECT"
	SessionKindBreak   SessionKind = "BREAK"
	SessionKindVacant  SessionKind = "VACANT"
	SessionKindEmpty   SessionKind = "EMPTY"
)

// SessionContent is the closed set of things a grid cell can hold.
// Implementations: SubjectContent, BreakContent, VacantContent, EmptyContent.
type SessionContent interface {
	Kind() SessionKind
	sessionContent()
}

// SubjectContent schedules a subject/instructor pairing in the cell.
type SubjectContent struct {
	CrossRefID string
}

// BreakContent marks the cell as a break with an optional description.
type BreakContent struct {
	Description *string
}

// VacantContent marks the cell as intentionally free.
type VacantContent struct{}

// EmptyContent is the default state of a cell.
type EmptyContent struct{}

func (SubjectContent) Kind() SessionKind { return SessionKindSubject }
func (BreakContent) Kind() SessionKind   { return SessionKindBreak }
func (VacantContent) Kind() SessionKind  { return SessionKindVacant }
func (EmptyContent) Kind() SessionKind   { return SessionKindEmpty }

func (SubjectContent) sessionContent() {}
func (BreakContent) sessionContent()   {}
func (VacantContent) sessionContent()  {}
func (EmptyContent) sessionContent()   {}

// ContentOrEmpty maps a nil content to EmptyContent.
func ContentOrEmpty(c SessionContent) SessionContent {
	if c == nil {
		return EmptyContent{}
	}
	return c
}

// Session is one cell of a timetable grid. (TimetableID, DayOfWeek, StartTime)
// identifies it naturally.
type Session struct {
	ID          string
	TimetableID string
	DayOfWeek   DayOfWeek
	StartTime   HourOfDay
	Content     SessionContent
}

// CrossRefID returns the referenced cross-ref for Subject sessions.
func (s Session) CrossRefID() (string, bool) {
	if c, ok := s.Content.(SubjectContent); ok {
		return c.CrossRefID, true
	}
	return "", false
}

// SessionContentJSON is the tagged wire form of SessionContent.
type SessionContentJSON struct {
	Kind        SessionKind `json:"kind"`
	CrossRefID  *string     `json:"cross_ref_id,omitempty"`
	Description *string     `json:"description,omitempty"`
}

// ContentToJSON converts content into its tagged wire form.
func ContentToJSON(c SessionContent) SessionContentJSON {
	kind, crossRefID, label := ContentFields(c)
	return SessionContentJSON{Kind: kind, CrossRefID: crossRefID, Description: label}
}

// Content converts the wire form back, rejecting illegal combinations.
func (w SessionContentJSON) Content() (SessionContent, error) {
	return ContentFromFields(w.Kind, w.CrossRefID, w.Description)
}

// ContentFields flattens content into (kind, cross_ref_id, label) columns.
func ContentFields(c SessionContent) (SessionKind, *string, *string) {
	switch v := ContentOrEmpty(c).(type) {
	case SubjectContent:
		id := v.CrossRefID
		return SessionKindSubject, &id, nil
	case BreakContent:
		return SessionKindBreak, nil, cloneString(v.Description)
	case VacantContent:
		return SessionKindVacant, nil, nil
	default:
		return SessionKindEmpty, nil, nil
	}
}

// ContentFromFields rebuilds content from its flattened columns.
func ContentFromFields(kind SessionKind, crossRefID, label *string) (SessionContent, error) {
	switch kind {
	case SessionKindSubject:
		if crossRefID == nil || *crossRefID == "" {
			return nil, fmt.Errorf("subject session requires a cross-ref id")
		}
		if label != nil {
			return nil, fmt.Errorf("subject session cannot carry a label")
		}
		return SubjectContent{CrossRefID: *crossRefID}, nil
	case SessionKindBreak:
		if crossRefID != nil {
			return nil, fmt.Errorf("break session cannot reference a cross-ref")
		}
		return BreakContent{Description: cloneString(label)}, nil
	case SessionKindVacant, SessionKindEmpty:
		if crossRefID != nil || label != nil {
			return nil, fmt.Errorf("%s session carries no payload", kind)
		}
		if kind == SessionKindVacant {
			return VacantContent{}, nil
		}
		return EmptyContent{}, nil
	default:
		return nil, fmt.Errorf("unknown session kind %q", kind)
	}
}

type sessionJSON struct {
	ID          string             `json:"id"`
	TimetableID string             `json:"timetable_id"`
	DayOfWeek   DayOfWeek          `json:"day_of_week"`
	StartTime   HourOfDay          `json:"start_time"`
	Content     SessionContentJSON `json:"content"`
}

// MarshalJSON encodes the content as a tagged object.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(sessionJSON{
		ID:          s.ID,
		TimetableID: s.TimetableID,
		DayOfWeek:   s.DayOfWeek,
		StartTime:   s.StartTime,
		Content:     ContentToJSON(s.Content),
	})
}

// UnmarshalJSON decodes the tagged content form.
func (s *Session) UnmarshalJSON(data []byte) error {
	var wire sessionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	content, err := wire.Content.Content()
	if err != nil {
		return err
	}
	*s = Session{
		ID:          wire.ID,
		TimetableID: wire.TimetableID,
		DayOfWeek:   wire.DayOfWeek,
		StartTime:   wire.StartTime,
		Content:     content,
	}
	return nil
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
