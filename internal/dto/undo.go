package dto

import (
	"fmt"

	"github.com/noah-isme/timetable-api/internal/models"
)

// UndoPacket is the wire form of an undo packet. Type selects which of the
// remaining fields are meaningful; clients hand it back unchanged.
type UndoPacket struct {
	Type        models.UndoKind    `json:"type" validate:"required"`
	Subject     *models.Subject    `json:"subject,omitempty"`
	Instructor  *models.Instructor `json:"instructor,omitempty"`
	CrossRef    *models.CrossRef   `json:"cross_ref,omitempty"`
	Timetable   *models.Timetable  `json:"timetable,omitempty"`
	CrossRefs   []models.CrossRef  `json:"cross_refs,omitempty"`
	CrossRefIDs []string           `json:"cross_ref_ids,omitempty"`
	Sessions    []models.Session   `json:"sessions,omitempty"`
}

// DeletionResponse is returned by every cascading delete.
type DeletionResponse struct {
	Deleted string     `json:"deleted"`
	Undo    UndoPacket `json:"undo"`
}

// EncodeUndo converts a packet into its wire form.
func EncodeUndo(packet models.UndoPacket) UndoPacket {
	switch p := packet.(type) {
	case models.SubjectDeletion:
		return UndoPacket{Type: p.UndoKind(), Subject: &p.Subject, CrossRefs: p.CrossRefs, Sessions: p.Sessions}
	case *models.SubjectDeletion:
		return EncodeUndo(*p)
	case models.InstructorDeletion:
		return UndoPacket{Type: p.UndoKind(), Instructor: &p.Instructor, CrossRefIDs: p.CrossRefIDs}
	case *models.InstructorDeletion:
		return EncodeUndo(*p)
	case models.CrossRefDeletion:
		return UndoPacket{Type: p.UndoKind(), CrossRef: &p.CrossRef, Sessions: p.Sessions}
	case *models.CrossRefDeletion:
		return EncodeUndo(*p)
	case models.TimetableDeletion:
		return UndoPacket{Type: p.UndoKind(), Timetable: &p.Timetable, Sessions: p.Sessions}
	case *models.TimetableDeletion:
		return EncodeUndo(*p)
	default:
		return UndoPacket{}
	}
}

// Packet rebuilds the domain packet, rejecting payloads missing the record
// their type requires.
func (w UndoPacket) Packet() (models.UndoPacket, error) {
	switch w.Type {
	case models.UndoKindSubjectDeleted:
		if w.Subject == nil {
			return nil, fmt.Errorf("%s packet requires subject", w.Type)
		}
		return models.SubjectDeletion{Subject: *w.Subject, CrossRefs: w.CrossRefs, Sessions: w.Sessions}, nil
	case models.UndoKindInstructorDeleted:
		if w.Instructor == nil {
			return nil, fmt.Errorf("%s packet requires instructor", w.Type)
		}
		return models.InstructorDeletion{Instructor: *w.Instructor, CrossRefIDs: w.CrossRefIDs}, nil
	case models.UndoKindCrossRefDeleted:
		if w.CrossRef == nil {
			return nil, fmt.Errorf("%s packet requires cross_ref", w.Type)
		}
		return models.CrossRefDeletion{CrossRef: *w.CrossRef, Sessions: w.Sessions}, nil
	case models.UndoKindTimetableDeleted:
		if w.Timetable == nil {
			return nil, fmt.Errorf("%s packet requires timetable", w.Type)
		}
		return models.TimetableDeletion{Timetable: *w.Timetable, Sessions: w.Sessions}, nil
	default:
		return nil, fmt.Errorf("unknown undo packet type %q", w.Type)
	}
}
