package models

import (
	"time"

	"gorm.io/datatypes"
)

// RubricSet is an immutable-by-content list of grading criteria plus the
// mutable deadline/attempt-limit metadata attached to it. The primary key is
// a content hash of the canonicalized criteria JSON, so uploading the same
// rubric twice resolves to the same set.
type RubricSet struct {
	ID          string         `gorm:"primaryKey;size:64" json:"rubric_set_id"`
	Title       string         `gorm:"size:255" json:"title"`
	Criteria    datatypes.JSON `gorm:"not null" json:"criteria"`
	Deadline    *time.Time     `json:"deadline"`
	MaxAttempts *int           `json:"max_attempts"`
	TeacherID   string         `gorm:"size:64;index" json:"teacher_id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsPastDeadline returns true when a deadline is set and the reference time
// falls after it. Sets without a deadline never expire.
func (r RubricSet) IsPastDeadline(reference time.Time) bool {
	return r.Deadline != nil && reference.After(*r.Deadline)
}

// AttemptsExhausted reports whether usedAttempts has reached the configured
// limit. Sets without a limit allow unlimited attempts.
func (r RubricSet) AttemptsExhausted(usedAttempts int) bool {
	return r.MaxAttempts != nil && usedAttempts >= *r.MaxAttempts
}
