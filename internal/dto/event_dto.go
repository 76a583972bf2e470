package dto

import "time"

// EventTypeGraded marks events emitted after a successful grading run.
const EventTypeGraded = "submission_graded"

// GradingEvent is streamed to the submitting student over SSE once their
// report has been graded.
type GradingEvent struct {
	Type        string    `json:"type"`
	StudentID   string    `json:"student_id"`
	RubricSetID string    `json:"rubric_set_id"`
	RubricTitle string    `json:"rubric_title,omitempty"`
	Attempt     int       `json:"attempt"`
	TotalScore  float64   `json:"total_score"`
	MaxScore    float64   `json:"max_score"`
	Operation   string    `json:"operation"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}
