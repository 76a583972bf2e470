package models

import (
	"time"

	"gorm.io/datatypes"
)

// BluebookRecord stores the fields extracted from one answer-booklet cover
// photo. Records are append-only; re-scanning the same booklet simply adds a
// fresh row.
type BluebookRecord struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	TeacherID   string         `gorm:"size:64;index" json:"teacher_id"`
	SourceFile  string         `gorm:"size:512" json:"source_file"`
	ArchiveURL  string         `gorm:"size:512" json:"archive_url"`
	USN         string         `gorm:"size:32;index" json:"usn"`
	SubjectCode string         `gorm:"size:32" json:"subject_code"`
	Marks       datatypes.JSON `json:"marks"`
	Raw         datatypes.JSON `json:"raw"`
	CreatedAt   time.Time      `json:"created_at"`
}
