package dto

import (
	"encoding/json"
	"time"

	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/timeutil"
	"github.com/edulens/edulens-api/pkg/ai"
)

// SubmissionCreateRequest describes the multipart payload for a report
// submission. The report itself arrives as the "file" part; the student is
// taken from the authenticated token.
type SubmissionCreateRequest struct {
	RubricSetID string `form:"rubric_set_id" validate:"required"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	StudentID          string          `json:"student_id"`
	RubricSetID        string          `json:"rubric_set_id"`
	Filename           string          `json:"filename"`
	AttemptNumber      int             `json:"attempt_number"`
	Result             json.RawMessage `json:"result"`
	SubmittedAt        time.Time       `json:"submitted_at"`
	SubmittedAtDisplay string          `json:"submitted_at_display"`
}

// GradeOutcomeResponse reports a just-completed grading run.
// AttemptsRemaining is nil when the rubric set has no attempt limit.
type GradeOutcomeResponse struct {
	RubricSetID       string         `json:"rubric_set_id"`
	AttemptNumber     int            `json:"attempt_number"`
	AttemptsRemaining *int           `json:"attempts_remaining"`
	Operation         string         `json:"operation"`
	Result            ai.GradeResult `json:"result"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		StudentID:          model.StudentID,
		RubricSetID:        model.RubricSetID,
		Filename:           model.Filename,
		AttemptNumber:      model.AttemptNumber,
		Result:             json.RawMessage(model.Result),
		SubmittedAt:        model.SubmittedAt,
		SubmittedAtDisplay: timeutil.FormatIST(model.SubmittedAt),
	}
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
