package models

// Instructor teaches subjects. Names are unique as stored.
type Instructor struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// InstructorFilter captures filtering options for listing instructors.
type InstructorFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortOrder string
}
