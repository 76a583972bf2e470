package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/models"
)

// BluebookRepository defines data operations for extracted bluebook records.
type BluebookRepository interface {
	Create(ctx context.Context, record *models.BluebookRecord) error
	ListByTeacher(ctx context.Context, teacherID string) ([]models.BluebookRecord, error)
}

type bluebookRepository struct {
	db *gorm.DB
}

// NewBluebookRepository instantiates the repository.
func NewBluebookRepository(db *gorm.DB) BluebookRepository {
	return &bluebookRepository{db: db}
}

func (r *bluebookRepository) Create(ctx context.Context, record *models.BluebookRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *bluebookRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.BluebookRecord, error) {
	var records []models.BluebookRecord
	if err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}
