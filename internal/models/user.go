package models

import "time"

// User represents a registered platform account. Students carry their
// university seat number as the identifier; teacher identifiers are
// generated at registration time.
type User struct {
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	Name         string    `gorm:"size:255" json:"name"`
	Role         string    `gorm:"size:16;not null;index" json:"role"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	// RoleStudent marks accounts that submit reports for grading.
	RoleStudent = "student"
	// RoleTeacher marks accounts that manage rubric sets and bluebooks.
	RoleTeacher = "teacher"
)
