package dto

import "time"

// DashboardEntry summarizes one rubric set from the student's perspective:
// gate status plus the latest graded attempt if any.
type DashboardEntry struct {
	RubricSetID       string     `json:"rubric_set_id"`
	Title             string     `json:"title"`
	Deadline          *time.Time `json:"deadline"`
	DeadlineDisplay   string     `json:"deadline_display,omitempty"`
	DeadlinePassed    bool       `json:"deadline_passed"`
	MaxAttempts       *int       `json:"max_attempts"`
	AttemptsUsed      int        `json:"attempts_used"`
	AttemptsRemaining *int       `json:"attempts_remaining"`
	TotalScore        *float64   `json:"total_score"`
	MaxScore          *float64   `json:"max_score"`
	SubmittedAt       *time.Time `json:"submitted_at"`
}

// DashboardResponse aggregates a student's standing across all rubric sets.
type DashboardResponse struct {
	StudentID   string           `json:"student_id"`
	Entries     []DashboardEntry `json:"entries"`
	GeneratedAt time.Time        `json:"generated_at"`
}
