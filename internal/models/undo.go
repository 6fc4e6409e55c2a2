package models

// UndoKind tags the variant of an UndoPacket.
type UndoKind string

const (
	UndoKindSubjectDeleted    UndoKind = "SUBJECT_DELETED"
	UndoKindInstructorDeleted UndoKind = "INSTRUCTOR_DELETED"
	UndoKindCrossRefDeleted   UndoKind = "CROSS_REF_DELETED"
	UndoKindTimetableDeleted  UndoKind = "TIMETABLE_DELETED"
)

// UndoPacket is the compensating data returned by a cascading delete. It is
// single use. Implementations: SubjectDeletion, InstructorDeletion,
// CrossRefDeletion, TimetableDeletion.
type UndoPacket interface {
	UndoKind() UndoKind
	undoPacket()
}

// SubjectDeletion reverses a subject delete.
type SubjectDeletion struct {
	Subject   Subject
	CrossRefs []CrossRef
	// Sessions hold their content from before they were emptied.
	Sessions []Session
}

// InstructorDeletion reverses an instructor delete.
type InstructorDeletion struct {
	Instructor  Instructor
	CrossRefIDs []string
}

// CrossRefDeletion reverses a schedule entry delete.
type CrossRefDeletion struct {
	CrossRef CrossRef
	Sessions []Session
}

// TimetableDeletion holds everything needed to rebuild a timetable.
type TimetableDeletion struct {
	Timetable Timetable
	Sessions  []Session
}

func (SubjectDeletion) UndoKind() UndoKind    { return UndoKindSubjectDeleted }
func (InstructorDeletion) UndoKind() UndoKind { return UndoKindInstructorDeleted }
func (CrossRefDeletion) UndoKind() UndoKind   { return UndoKindCrossRefDeleted }
func (TimetableDeletion) UndoKind() UndoKind  { return UndoKindTimetableDeleted }

func (SubjectDeletion) undoPacket()    {}
func (InstructorDeletion) undoPacket() {}
func (CrossRefDeletion) undoPacket()   {}
func (TimetableDeletion) undoPacket()  {}
