package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/edulens/edulens-api/internal/models"
)

// Upsert outcome labels reported back to callers.
const (
	OpInserted = "inserted"
	OpUpdated  = "updated"
)

// RubricSetRepository defines data operations for rubric sets.
type RubricSetRepository interface {
	Upsert(ctx context.Context, set *models.RubricSet) (string, error)
	Get(ctx context.Context, id string) (models.RubricSet, error)
	List(ctx context.Context) ([]models.RubricSet, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.RubricSet, error)
}

type rubricSetRepository struct {
	db *gorm.DB
}

// NewRubricSetRepository instantiates the repository.
func NewRubricSetRepository(db *gorm.DB) RubricSetRepository {
	return &rubricSetRepository{db: db}
}

// Upsert writes a rubric set keyed by its content hash. When a row with the
// same ID already exists only the deadline and attempt limit are refreshed;
// the criteria, title, owner and creation time keep their original values.
// Returns "inserted" or "updated" depending on whether the row existed.
func (r *rubricSetRepository) Upsert(ctx context.Context, set *models.RubricSet) (string, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&models.RubricSet{}).
		Where("id = ?", set.ID).
		Count(&existing).Error; err != nil {
		return "", err
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"deadline", "max_attempts", "updated_at"}),
	})
	if err := tx.Create(set).Error; err != nil {
		return "", err
	}

	if existing > 0 {
		return OpUpdated, nil
	}
	return OpInserted, nil
}

func (r *rubricSetRepository) Get(ctx context.Context, id string) (models.RubricSet, error) {
	var set models.RubricSet
	if err := r.db.WithContext(ctx).First(&set, "id = ?", id).Error; err != nil {
		return models.RubricSet{}, err
	}

	return set, nil
}

func (r *rubricSetRepository) List(ctx context.Context) ([]models.RubricSet, error) {
	var sets []models.RubricSet
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&sets).Error; err != nil {
		return nil, err
	}

	return sets, nil
}

func (r *rubricSetRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.RubricSet, error) {
	var sets []models.RubricSet
	if err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&sets).Error; err != nil {
		return nil, err
	}

	return sets, nil
}
