package models

// CrossRef pairs a subject with an optional instructor and a hue. It is the
// schedule entry definition that Subject sessions point to.
type CrossRef struct {
	ID           string  `db:"id" json:"id"`
	SubjectID    string  `db:"subject_id" json:"subject_id"`
	InstructorID *string `db:"instructor_id" json:"instructor_id,omitempty"`
	Hue          int     `db:"hue" json:"hue"`
}

// CrossRefDetail is a CrossRef with its subject and instructor resolved.
type CrossRefDetail struct {
	CrossRef
	Subject    Subject     `json:"subject"`
	Instructor *Instructor `json:"instructor,omitempty"`
}

// CrossRefFilter constrains cross-ref listings.
type CrossRefFilter struct {
	SubjectID    string
	InstructorID string
}
