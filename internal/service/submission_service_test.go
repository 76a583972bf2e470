package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/pkg/ai"
)

var testClock = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

type stubGrader struct {
	calls   int
	result  ai.GradeResult
	err     error
	onGrade func()
}

func (s *stubGrader) GradeReport(_ context.Context, _ ai.Document, _ []ai.Criterion) (ai.GradeResult, error) {
	s.calls++
	if s.onGrade != nil {
		s.onGrade()
	}
	if s.err != nil {
		return ai.GradeResult{}, s.err
	}
	return s.result, nil
}

type stubUploader struct {
	names []string
	err   error
}

func (s *stubUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.names = append(s.names, name)
	return "https://cdn.test/" + name, nil
}

type stubPublisher struct {
	events []dto.GradingEvent
}

func (s *stubPublisher) PublishGraded(_ context.Context, event dto.GradingEvent) {
	s.events = append(s.events, event)
}

type stubInvalidator struct {
	students []string
}

func (s *stubInvalidator) Invalidate(_ context.Context, studentID string) {
	s.students = append(s.students, studentID)
}

type submissionFixture struct {
	db          *gorm.DB
	service     SubmissionService
	grader      *stubGrader
	uploader    *stubUploader
	publisher   *stubPublisher
	invalidator *stubInvalidator
	reportPath  string
}

func setupSubmissionService(t *testing.T) *submissionFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:submission_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RubricSet{}, &models.Submission{}))

	grader := &stubGrader{result: testGradeResult()}
	uploader := &stubUploader{}
	publisher := &stubPublisher{}
	invalidator := &stubInvalidator{}

	service := NewSubmissionService(
		repository.NewSubmissionRepository(db),
		repository.NewRubricSetRepository(db),
		grader,
		uploader,
		publisher,
		invalidator,
		zerolog.Nop(),
	)
	if concrete, ok := service.(*submissionService); ok {
		concrete.now = func() time.Time { return testClock }
	}

	reportPath := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(reportPath, []byte("Design and results of the lab experiment."), 0o600))

	return &submissionFixture{
		db:          db,
		service:     service,
		grader:      grader,
		uploader:    uploader,
		publisher:   publisher,
		invalidator: invalidator,
		reportPath:  reportPath,
	}
}

func testCriteriaJSON(t *testing.T) datatypes.JSON {
	t.Helper()
	criteria := []ai.Criterion{
		{Key: "intro", Title: "Introduction", MaxScore: 10},
		{Key: "method", Title: "Method", MaxScore: 10},
	}
	payload, err := json.Marshal(criteria)
	require.NoError(t, err)
	return datatypes.JSON(payload)
}

func testGradeResult() ai.GradeResult {
	return ai.GradeResult{
		Scores: []ai.CriterionScore{
			{Key: "intro", Title: "Introduction", Score: 7, Feedback: "solid opening", Matched: true},
			{Key: "method", Title: "Method", Score: 9, Feedback: "rigorous", Matched: true},
		},
		OverallFeedback: "Well structured report.",
		TotalScore:      16,
		MaxScore:        20,
	}
}

func (f *submissionFixture) seedRubricSet(t *testing.T, id string, deadline *time.Time, maxAttempts *int) {
	t.Helper()
	set := models.RubricSet{
		ID:          id,
		Title:       "Lab Rubric",
		Criteria:    testCriteriaJSON(t),
		Deadline:    deadline,
		MaxAttempts: maxAttempts,
		TeacherID:   "t_smith_1a2b",
	}
	require.NoError(t, f.db.Create(&set).Error)
}

func (f *submissionFixture) submit(student, rubricSetID string) (SubmitOutcome, error) {
	return f.service.SubmitForGrading(context.Background(), SubmitInput{
		StudentID:   student,
		RubricSetID: rubricSetID,
		ReportPath:  f.reportPath,
		Filename:    "report.pdf",
	})
}

func TestSubmitForGradingFirstAttempt(t *testing.T) {
	f := setupSubmissionService(t)
	three := 3
	f.seedRubricSet(t, "set-1", nil, &three)

	outcome, err := f.submit("1MS22CS001", "set-1")
	require.NoError(t, err)
	require.Equal(t, 1, outcome.AttemptNumber)
	require.Equal(t, repository.OpInserted, outcome.Operation)
	require.NotNil(t, outcome.AttemptsRemaining)
	require.Equal(t, 2, *outcome.AttemptsRemaining)
	require.Equal(t, 16.0, outcome.Result.TotalScore)
	require.Equal(t, "Lab Rubric", outcome.RubricTitle)
	require.True(t, outcome.SubmittedAt.Equal(testClock))

	var stored models.Submission
	require.NoError(t, f.db.First(&stored, "student_id = ?", "1MS22CS001").Error)
	require.Equal(t, 1, stored.AttemptNumber)
	require.Equal(t, "report.pdf", stored.Filename)

	var persisted ai.GradeResult
	require.NoError(t, json.Unmarshal(stored.Result, &persisted))
	require.Equal(t, 16.0, persisted.TotalScore)
	require.Len(t, persisted.Scores, 2)

	require.Equal(t, 1, f.grader.calls)
	require.Len(t, f.publisher.events, 1)
	require.Equal(t, dto.EventTypeGraded, f.publisher.events[0].Type)
	require.Equal(t, "1MS22CS001", f.publisher.events[0].StudentID)
	require.Equal(t, []string{"1MS22CS001"}, f.invalidator.students)
	require.Len(t, f.uploader.names, 1)
}

func TestSubmitForGradingDeadlineGateSkipsAdapter(t *testing.T) {
	f := setupSubmissionService(t)
	passed := testClock.Add(-time.Hour)
	f.seedRubricSet(t, "set-1", &passed, nil)

	_, err := f.submit("1MS22CS001", "set-1")
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	require.Zero(t, f.grader.calls, "policy gates must never invoke the model")

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmitForGradingAttemptLimitIsExact(t *testing.T) {
	f := setupSubmissionService(t)
	two := 2
	f.seedRubricSet(t, "set-1", nil, &two)

	first, err := f.submit("1MS22CS001", "set-1")
	require.NoError(t, err)
	require.Equal(t, 1, first.AttemptNumber)

	second, err := f.submit("1MS22CS001", "set-1")
	require.NoError(t, err)
	require.Equal(t, 2, second.AttemptNumber)
	require.Equal(t, repository.OpUpdated, second.Operation)
	require.NotNil(t, second.AttemptsRemaining)
	require.Zero(t, *second.AttemptsRemaining)

	_, err = f.submit("1MS22CS001", "set-1")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 2, f.grader.calls, "third call must be rejected before the model")
}

func TestSubmitForGradingFailureConsumesNoAttempt(t *testing.T) {
	f := setupSubmissionService(t)
	one := 1
	f.seedRubricSet(t, "set-1", nil, &one)

	f.grader.err = errors.New("upstream timeout")
	_, err := f.submit("1MS22CS001", "set-1")
	require.ErrorIs(t, err, ErrGradingFailed)

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	require.Zero(t, count, "failed grading must not consume the attempt")

	f.grader.err = nil
	outcome, err := f.submit("1MS22CS001", "set-1")
	require.NoError(t, err)
	require.Equal(t, 1, outcome.AttemptNumber)
}

func TestSubmitForGradingMalformedResponsePassesThrough(t *testing.T) {
	f := setupSubmissionService(t)
	f.seedRubricSet(t, "set-1", nil, nil)

	f.grader.err = fmt.Errorf("%w: preview", ai.ErrMalformedResponse)
	_, err := f.submit("1MS22CS001", "set-1")
	require.ErrorIs(t, err, ai.ErrMalformedResponse)
	require.NotErrorIs(t, err, ErrGradingFailed)
}

func TestSubmitForGradingConflictRetriesWithFreshAttempt(t *testing.T) {
	f := setupSubmissionService(t)
	three := 3
	f.seedRubricSet(t, "set-1", nil, &three)

	// A concurrent submission wins the insert race while the model call is
	// in flight; the service must re-read and retry as attempt 2.
	seeded := false
	f.grader.onGrade = func() {
		if seeded {
			return
		}
		seeded = true
		competing := models.Submission{
			StudentID:     "1MS22CS001",
			RubricSetID:   "set-1",
			Filename:      "rival.pdf",
			AttemptNumber: 1,
			Criteria:      testCriteriaJSON(t),
			Result:        datatypes.JSON(`{"total_score":5}`),
			SubmittedAt:   testClock,
		}
		require.NoError(t, f.db.Create(&competing).Error)
	}

	outcome, err := f.submit("1MS22CS001", "set-1")
	require.NoError(t, err)
	require.Equal(t, 2, outcome.AttemptNumber)
	require.Equal(t, repository.OpUpdated, outcome.Operation)
	require.Equal(t, 1, f.grader.calls)

	var stored models.Submission
	require.NoError(t, f.db.First(&stored, "student_id = ?", "1MS22CS001").Error)
	require.Equal(t, 2, stored.AttemptNumber)
	require.Equal(t, "report.pdf", stored.Filename)
}

func TestSubmitForGradingConflictRespectsAttemptLimit(t *testing.T) {
	f := setupSubmissionService(t)
	one := 1
	f.seedRubricSet(t, "set-1", nil, &one)

	seeded := false
	f.grader.onGrade = func() {
		if seeded {
			return
		}
		seeded = true
		competing := models.Submission{
			StudentID:     "1MS22CS001",
			RubricSetID:   "set-1",
			Filename:      "rival.pdf",
			AttemptNumber: 1,
			Criteria:      testCriteriaJSON(t),
			Result:        datatypes.JSON(`{"total_score":5}`),
			SubmittedAt:   testClock,
		}
		require.NoError(t, f.db.Create(&competing).Error)
	}

	_, err := f.submit("1MS22CS001", "set-1")
	require.ErrorIs(t, err, ErrAttemptsExhausted)

	var stored models.Submission
	require.NoError(t, f.db.First(&stored, "student_id = ?", "1MS22CS001").Error)
	require.Equal(t, "rival.pdf", stored.Filename, "the concurrent winner's record must survive")

	var count int64
	require.NoError(t, f.db.Model(&models.Submission{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSubmitForGradingValidation(t *testing.T) {
	f := setupSubmissionService(t)
	f.seedRubricSet(t, "set-1", nil, nil)

	_, err := f.service.SubmitForGrading(context.Background(), SubmitInput{RubricSetID: "set-1", ReportPath: f.reportPath})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.SubmitForGrading(context.Background(), SubmitInput{StudentID: "1MS22CS001", ReportPath: f.reportPath})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.service.SubmitForGrading(context.Background(), SubmitInput{
		StudentID:   "1MS22CS001",
		RubricSetID: "set-1",
		ReportPath:  filepath.Join(t.TempDir(), "missing.pdf"),
	})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, f.grader.calls)

	_, err = f.submit("1MS22CS001", "does-not-exist")
	require.ErrorIs(t, err, ErrRubricSetNotFound)
}

func TestSubmitForGradingWithoutSideEffectTargets(t *testing.T) {
	f := setupSubmissionService(t)
	f.seedRubricSet(t, "set-1", nil, nil)

	service := NewSubmissionService(
		repository.NewSubmissionRepository(f.db),
		repository.NewRubricSetRepository(f.db),
		f.grader,
		nil,
		nil,
		nil,
		zerolog.Nop(),
	)
	if concrete, ok := service.(*submissionService); ok {
		concrete.now = func() time.Time { return testClock }
	}

	outcome, err := service.SubmitForGrading(context.Background(), SubmitInput{
		StudentID:   "1MS22CS001",
		RubricSetID: "set-1",
		ReportPath:  f.reportPath,
	})
	require.NoError(t, err)
	require.Equal(t, 1, outcome.AttemptNumber)
	require.Nil(t, outcome.AttemptsRemaining, "no limit configured")
}

func TestSubmissionListsByStudentAndRubricSet(t *testing.T) {
	f := setupSubmissionService(t)
	f.seedRubricSet(t, "set-1", nil, nil)
	f.seedRubricSet(t, "set-2", nil, nil)

	older := models.Submission{
		StudentID: "1MS22CS001", RubricSetID: "set-1", Filename: "a.pdf",
		AttemptNumber: 1, Criteria: testCriteriaJSON(t),
		Result: datatypes.JSON(`{"total_score":12}`), SubmittedAt: testClock.Add(-time.Hour),
	}
	newer := models.Submission{
		StudentID: "1MS22CS001", RubricSetID: "set-2", Filename: "b.pdf",
		AttemptNumber: 2, Criteria: testCriteriaJSON(t),
		Result: datatypes.JSON(`{"total_score":18}`), SubmittedAt: testClock,
	}
	require.NoError(t, f.db.Create(&older).Error)
	require.NoError(t, f.db.Create(&newer).Error)

	mine, err := f.service.ListByStudent(context.Background(), "1MS22CS001")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, "set-2", mine[0].RubricSetID, "newest first")
	require.Equal(t, 2, mine[0].AttemptNumber)

	bySet, err := f.service.ListByRubricSet(context.Background(), "set-1")
	require.NoError(t, err)
	require.Len(t, bySet, 1)
	require.Equal(t, "a.pdf", bySet[0].Filename)

	_, err = f.service.ListByRubricSet(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrRubricSetNotFound)

	_, err = f.service.ListByStudent(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidInput)
}
