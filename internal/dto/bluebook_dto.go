package dto

import (
	"encoding/json"
	"time"

	"github.com/edulens/edulens-api/internal/models"
)

// BluebookResponse reports the fields read from one answer-booklet cover.
// Persisted is false when no USN could be extracted, in which case nothing
// was stored.
type BluebookResponse struct {
	ID          uint            `json:"id,omitempty"`
	USN         string          `json:"usn"`
	SubjectCode string          `json:"subject_code"`
	Marks       json.RawMessage `json:"marks,omitempty"`
	SourceFile  string          `json:"source_file"`
	ArchiveURL  string          `json:"archive_url,omitempty"`
	Persisted   bool            `json:"persisted"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
}

// NewBluebookResponse converts a stored BluebookRecord into a DTO.
func NewBluebookResponse(model models.BluebookRecord) BluebookResponse {
	createdAt := model.CreatedAt
	return BluebookResponse{
		ID:          model.ID,
		USN:         model.USN,
		SubjectCode: model.SubjectCode,
		Marks:       json.RawMessage(model.Marks),
		SourceFile:  model.SourceFile,
		ArchiveURL:  model.ArchiveURL,
		Persisted:   true,
		CreatedAt:   &createdAt,
	}
}

// NewBluebookResponseSlice converts bluebook records into DTOs.
func NewBluebookResponseSlice(records []models.BluebookRecord) []BluebookResponse {
	responses := make([]BluebookResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewBluebookResponse(record))
	}

	return responses
}
