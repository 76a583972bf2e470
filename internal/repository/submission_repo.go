package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edulens/edulens-api/internal/models"
)

// ErrAttemptConflict is returned when a graded attempt loses the write race
// against a concurrent submission for the same (student, rubric set) pair.
// Callers are expected to re-read the row and re-check the attempt limit
// before retrying.
var ErrAttemptConflict = errors.New("submission attempt conflict")

// SubmissionRepository defines data operations for graded submissions.
type SubmissionRepository interface {
	Get(ctx context.Context, studentID, rubricSetID string) (models.Submission, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Submission, error)
	ListByRubricSet(ctx context.Context, rubricSetID string) ([]models.Submission, error)
	UpsertGraded(ctx context.Context, submission *models.Submission, expectedPrior int) (string, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Get(ctx context.Context, studentID, rubricSetID string) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("rubric_set_id = ?", rubricSetID).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) ListByRubricSet(ctx context.Context, rubricSetID string) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("rubric_set_id = ?", rubricSetID).
		Order("submitted_at DESC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// UpsertGraded stores a freshly graded attempt, guarded by the attempt number
// the caller observed before grading. A first attempt (expectedPrior == 0)
// inserts and refuses to clobber a row another request created in the
// meantime; a re-attempt updates in place only while the stored attempt
// number still matches. Either way a lost race surfaces as
// ErrAttemptConflict instead of silently overwriting the winner.
func (r *submissionRepository) UpsertGraded(ctx context.Context, submission *models.Submission, expectedPrior int) (string, error) {
	if expectedPrior == 0 {
		result := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "student_id"}, {Name: "rubric_set_id"}},
				DoNothing: true,
			}).
			Create(submission)
		if result.Error != nil {
			return "", result.Error
		}
		if result.RowsAffected == 0 {
			return "", ErrAttemptConflict
		}
		return OpInserted, nil
	}

	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("student_id = ?", submission.StudentID).
		Where("rubric_set_id = ?", submission.RubricSetID).
		Where("attempt_number = ?", expectedPrior).
		Updates(map[string]interface{}{
			"filename":       submission.Filename,
			"attempt_number": submission.AttemptNumber,
			"criteria":       submission.Criteria,
			"result":         submission.Result,
			"submitted_at":   submission.SubmittedAt,
		})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrAttemptConflict
	}

	return OpUpdated, nil
}
