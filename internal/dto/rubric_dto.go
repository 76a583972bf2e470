package dto

import (
	"encoding/json"
	"time"

	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/timeutil"
)

// RubricUploadRequest describes the multipart payload for rubric upload. The
// rubric document itself arrives as the "file" part; Deadline is RFC3339.
type RubricUploadRequest struct {
	Title       string `form:"title" validate:"omitempty,max=255"`
	Deadline    string `form:"deadline" validate:"omitempty"`
	MaxAttempts *int   `form:"max_attempts" validate:"omitempty,gt=0"`
}

// RubricSetResponse is returned to API clients when viewing rubric sets.
type RubricSetResponse struct {
	RubricSetID     string          `json:"rubric_set_id"`
	Title           string          `json:"title"`
	Criteria        json.RawMessage `json:"criteria"`
	CriteriaCount   int             `json:"criteria_count"`
	Deadline        *time.Time      `json:"deadline"`
	DeadlineDisplay string          `json:"deadline_display,omitempty"`
	MaxAttempts     *int            `json:"max_attempts"`
	TeacherID       string          `json:"teacher_id"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// RubricUploadResponse reports the outcome of a rubric upload. Operation is
// "inserted" for new content and "updated" when an existing set had its
// deadline or attempt limit refreshed.
type RubricUploadResponse struct {
	Operation string `json:"operation"`
	RubricSetResponse
}

// NewRubricSetResponse converts a RubricSet model into a DTO.
func NewRubricSetResponse(model models.RubricSet) RubricSetResponse {
	response := RubricSetResponse{
		RubricSetID: model.ID,
		Title:       model.Title,
		Criteria:    json.RawMessage(model.Criteria),
		Deadline:    model.Deadline,
		MaxAttempts: model.MaxAttempts,
		TeacherID:   model.TeacherID,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}

	var items []json.RawMessage
	if err := json.Unmarshal(model.Criteria, &items); err == nil {
		response.CriteriaCount = len(items)
	}

	if model.Deadline != nil {
		response.DeadlineDisplay = timeutil.FormatIST(*model.Deadline)
	}

	return response
}

// NewRubricSetResponseSlice converts rubric set models into DTOs.
func NewRubricSetResponseSlice(sets []models.RubricSet) []RubricSetResponse {
	responses := make([]RubricSetResponse, 0, len(sets))
	for _, set := range sets {
		responses = append(responses, NewRubricSetResponse(set))
	}

	return responses
}
