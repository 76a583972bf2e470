package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/observability"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/pkg/ai"
)

var (
	// ErrInvalidInput covers missing or unreadable request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDeadlineExceeded indicates the rubric set's deadline has passed.
	ErrDeadlineExceeded = errors.New("submission deadline has passed")
	// ErrAttemptsExhausted indicates the student has used every allowed attempt.
	ErrAttemptsExhausted = errors.New("maximum attempts exhausted")
	// ErrGradingFailed wraps grading-adapter failures. No attempt is consumed.
	ErrGradingFailed = errors.New("grading failed")
)

// Bound on write retries after losing a concurrent-submission race.
const maxGradeWriteRetries = 3

// FileUploader abstracts uploading binary data and returning a URL.
type FileUploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// GradingPublisher receives an event after every successful grading run.
type GradingPublisher interface {
	PublishGraded(ctx context.Context, event dto.GradingEvent)
}

// DashboardInvalidator drops cached dashboard state for a student.
type DashboardInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// SubmitInput describes one report submitted for grading.
type SubmitInput struct {
	StudentID   string
	RubricSetID string
	ReportPath  string
	Filename    string
}

// SubmitOutcome reports a completed grading run. AttemptsRemaining is nil
// when the rubric set has no attempt limit.
type SubmitOutcome struct {
	Result            ai.GradeResult
	Operation         string
	AttemptNumber     int
	AttemptsRemaining *int
	RubricTitle       string
	SubmittedAt       time.Time
}

// SubmissionService runs the deadline/attempt-gated grading workflow and
// serves stored submissions.
type SubmissionService interface {
	SubmitForGrading(ctx context.Context, input SubmitInput) (SubmitOutcome, error)
	ListByStudent(ctx context.Context, studentID string) ([]dto.SubmissionResponse, error)
	ListByRubricSet(ctx context.Context, rubricSetID string) ([]dto.SubmissionResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	rubrics     repository.RubricSetRepository
	grader      ai.Grader
	uploader    FileUploader
	events      GradingPublisher
	invalidator DashboardInvalidator
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance. The uploader,
// publisher and invalidator may be nil; those steps are skipped.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	rubrics repository.RubricSetRepository,
	grader ai.Grader,
	uploader FileUploader,
	events GradingPublisher,
	invalidator DashboardInvalidator,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		rubrics:     rubrics,
		grader:      grader,
		uploader:    uploader,
		events:      events,
		invalidator: invalidator,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		tracer:      otel.Tracer("github.com/edulens/edulens-api/internal/service/submission"),
		now:         time.Now,
	}
}

// SubmitForGrading grades one report against a rubric set. The deadline and
// attempt gates run before the model is invoked and a failed grading call
// consumes no attempt; the counter only moves when a result is persisted.
func (s *submissionService) SubmitForGrading(ctx context.Context, input SubmitInput) (SubmitOutcome, error) {
	input.StudentID = strings.TrimSpace(input.StudentID)
	input.RubricSetID = strings.TrimSpace(input.RubricSetID)
	if input.StudentID == "" {
		return SubmitOutcome{}, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}
	if input.RubricSetID == "" {
		return SubmitOutcome{}, fmt.Errorf("%w: rubric set id is required", ErrInvalidInput)
	}

	ctx, span := s.tracer.Start(ctx, "submissions.grade", trace.WithAttributes(
		attribute.String("submission.student_id", input.StudentID),
		attribute.String("submission.rubric_set_id", input.RubricSetID),
	))
	defer span.End()

	set, err := s.rubrics.Get(ctx, input.RubricSetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SubmitOutcome{}, ErrRubricSetNotFound
		}
		return SubmitOutcome{}, err
	}

	if set.IsPastDeadline(s.now().UTC()) {
		observability.GradingOutcomes().WithLabelValues("deadline_rejected").Inc()
		return SubmitOutcome{}, ErrDeadlineExceeded
	}

	usedAttempts := 0
	record, err := s.submissions.Get(ctx, input.StudentID, input.RubricSetID)
	switch {
	case err == nil:
		usedAttempts = record.AttemptNumber
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return SubmitOutcome{}, err
	}

	if set.AttemptsExhausted(usedAttempts) {
		observability.GradingOutcomes().WithLabelValues("attempts_rejected").Inc()
		return SubmitOutcome{}, ErrAttemptsExhausted
	}

	report, err := ai.LoadDocument(input.ReportPath)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.Filename != "" {
		report.Name = input.Filename
	}

	criteria, err := ai.ParseCriteria(string(set.Criteria))
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("stored criteria unreadable: %w", err)
	}

	result, err := s.grader.GradeReport(ctx, report, criteria)
	if err != nil {
		span.RecordError(err)
		observability.GradingOutcomes().WithLabelValues("failed").Inc()
		if errors.Is(err, ai.ErrMalformedResponse) || errors.Is(err, ai.ErrExtractionFailed) {
			return SubmitOutcome{}, err
		}
		return SubmitOutcome{}, fmt.Errorf("%w: %v", ErrGradingFailed, err)
	}

	outcome, err := s.persistGraded(ctx, input, set, report.Name, result, usedAttempts)
	if err != nil {
		return SubmitOutcome{}, err
	}

	observability.GradingOutcomes().WithLabelValues("graded").Inc()
	s.logger.Info().
		Str("student_id", input.StudentID).
		Str("rubric_set_id", input.RubricSetID).
		Int("attempt", outcome.AttemptNumber).
		Float64("total_score", outcome.Result.TotalScore).
		Msg("report graded")

	s.afterGraded(ctx, input, outcome)

	return outcome, nil
}

// persistGraded writes the graded attempt, retrying with a fresh attempt
// number when a concurrent submission wins the race. The attempts gate is
// re-checked on every retry so concurrent submissions either consume
// distinct attempt numbers or are rejected.
func (s *submissionService) persistGraded(ctx context.Context, input SubmitInput, set models.RubricSet, filename string, result ai.GradeResult, usedAttempts int) (SubmitOutcome, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return SubmitOutcome{}, err
	}

	attempt := usedAttempts + 1
	submittedAt := s.now().UTC()

	var operation string
	for retry := 0; ; retry++ {
		submission := models.Submission{
			StudentID:     input.StudentID,
			RubricSetID:   input.RubricSetID,
			Filename:      filename,
			AttemptNumber: attempt,
			Criteria:      set.Criteria,
			Result:        datatypes.JSON(resultJSON),
			SubmittedAt:   submittedAt,
		}

		operation, err = s.submissions.UpsertGraded(ctx, &submission, attempt-1)
		if err == nil {
			break
		}
		if !errors.Is(err, repository.ErrAttemptConflict) || retry >= maxGradeWriteRetries {
			return SubmitOutcome{}, err
		}

		fresh, readErr := s.submissions.Get(ctx, input.StudentID, input.RubricSetID)
		if readErr != nil && !errors.Is(readErr, gorm.ErrRecordNotFound) {
			return SubmitOutcome{}, readErr
		}
		used := 0
		if readErr == nil {
			used = fresh.AttemptNumber
		}
		if set.AttemptsExhausted(used) {
			observability.GradingOutcomes().WithLabelValues("attempts_rejected").Inc()
			return SubmitOutcome{}, ErrAttemptsExhausted
		}
		attempt = used + 1
	}

	return SubmitOutcome{
		Result:            result,
		Operation:         operation,
		AttemptNumber:     attempt,
		AttemptsRemaining: attemptsRemaining(set.MaxAttempts, attempt),
		RubricTitle:       set.Title,
		SubmittedAt:       submittedAt,
	}, nil
}

// afterGraded runs the best-effort follow-ups: archive the report, publish a
// grading event, invalidate the student's cached dashboard. Failures are
// logged and never mask the grading result.
func (s *submissionService) afterGraded(ctx context.Context, input SubmitInput, outcome SubmitOutcome) {
	if s.uploader != nil {
		if file, err := os.Open(input.ReportPath); err == nil {
			name := input.Filename
			if name == "" {
				name = input.ReportPath
			}
			if _, err := s.uploader.Upload(ctx, name, file); err != nil {
				s.logger.Warn().Err(err).Msg("report archive failed")
			}
			_ = file.Close()
		}
	}

	if s.events != nil {
		s.events.PublishGraded(ctx, dto.GradingEvent{
			Type:        dto.EventTypeGraded,
			StudentID:   input.StudentID,
			RubricSetID: input.RubricSetID,
			RubricTitle: outcome.RubricTitle,
			Attempt:     outcome.AttemptNumber,
			TotalScore:  outcome.Result.TotalScore,
			MaxScore:    outcome.Result.MaxScore,
			Operation:   outcome.Operation,
			Message:     fmt.Sprintf("Scored %.2f/%.0f on attempt %d", outcome.Result.TotalScore, outcome.Result.MaxScore, outcome.AttemptNumber),
			At:          outcome.SubmittedAt,
		})
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, input.StudentID)
	}
}

func (s *submissionService) ListByStudent(ctx context.Context, studentID string) ([]dto.SubmissionResponse, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", ErrInvalidInput)
	}

	submissions, err := s.submissions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) ListByRubricSet(ctx context.Context, rubricSetID string) ([]dto.SubmissionResponse, error) {
	rubricSetID = strings.TrimSpace(rubricSetID)
	if _, err := s.rubrics.Get(ctx, rubricSetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRubricSetNotFound
		}
		return nil, err
	}

	submissions, err := s.submissions.ListByRubricSet(ctx, rubricSetID)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func attemptsRemaining(maxAttempts *int, used int) *int {
	if maxAttempts == nil {
		return nil
	}

	remaining := *maxAttempts - used
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}
