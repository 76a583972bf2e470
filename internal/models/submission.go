package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission tracks the latest graded attempt for one student against one
// rubric set. The (student_id, rubric_set_id) pair is unique: every new
// attempt overwrites the stored result in place and bumps the attempt
// number, so only the most recent attempt survives.
type Submission struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	StudentID     string         `gorm:"size:64;not null;uniqueIndex:idx_submissions_student_rubric" json:"student_id"`
	RubricSetID   string         `gorm:"size:64;not null;uniqueIndex:idx_submissions_student_rubric" json:"rubric_set_id"`
	Filename      string         `gorm:"size:512" json:"filename"`
	AttemptNumber int            `gorm:"not null" json:"attempt_number"`
	Criteria      datatypes.JSON `json:"criteria"`
	Result        datatypes.JSON `json:"result"`
	SubmittedAt   time.Time      `gorm:"index" json:"submitted_at"`
	CreatedAt     time.Time      `json:"created_at"`
}
