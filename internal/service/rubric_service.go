package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/pkg/ai"
)

// ErrRubricSetNotFound indicates the requested rubric set does not exist.
var ErrRubricSetNotFound = errors.New("rubric set not found")

// CreateRubricInput describes a rubric document upload.
type CreateRubricInput struct {
	Path        string
	Filename    string
	Title       string
	TeacherID   string
	Deadline    *time.Time
	MaxAttempts *int
}

// RubricSetOutcome reports the stored set plus whether the upload inserted
// new content or refreshed an existing set's gates.
type RubricSetOutcome struct {
	Set       dto.RubricSetResponse
	Operation string
}

// RubricService manages rubric sets extracted from uploaded documents.
type RubricService interface {
	CreateFromDocument(ctx context.Context, input CreateRubricInput) (RubricSetOutcome, error)
	Get(ctx context.Context, id string) (dto.RubricSetResponse, error)
	List(ctx context.Context) ([]dto.RubricSetResponse, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]dto.RubricSetResponse, error)
}

type rubricService struct {
	rubrics   repository.RubricSetRepository
	extractor ai.RubricExtractor
	logger    zerolog.Logger
}

// NewRubricService constructs a RubricService instance.
func NewRubricService(rubrics repository.RubricSetRepository, extractor ai.RubricExtractor, logger zerolog.Logger) RubricService {
	return &rubricService{
		rubrics:   rubrics,
		extractor: extractor,
		logger:    logger.With().Str("component", "rubric_service").Logger(),
	}
}

// CreateFromDocument extracts criteria from the uploaded document and upserts
// the resulting set. The set ID is a hash of the criteria content, so the
// same rubric uploaded twice lands on the same row and only the deadline and
// attempt limit move.
func (s *rubricService) CreateFromDocument(ctx context.Context, input CreateRubricInput) (RubricSetOutcome, error) {
	if strings.TrimSpace(input.Path) == "" {
		return RubricSetOutcome{}, fmt.Errorf("%w: rubric document path is required", ErrInvalidInput)
	}

	doc, err := ai.LoadDocument(input.Path)
	if err != nil {
		return RubricSetOutcome{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if input.Filename != "" {
		doc.Name = input.Filename
	}

	criteria, err := s.extractor.ExtractCriteria(ctx, doc)
	if err != nil {
		return RubricSetOutcome{}, err
	}

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return RubricSetOutcome{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))
	}

	set := models.RubricSet{
		ID:          ai.RubricContentID(criteria),
		Title:       title,
		Criteria:    datatypes.JSON(criteriaJSON),
		Deadline:    input.Deadline,
		MaxAttempts: input.MaxAttempts,
		TeacherID:   input.TeacherID,
	}

	operation, err := s.rubrics.Upsert(ctx, &set)
	if err != nil {
		return RubricSetOutcome{}, err
	}

	stored, err := s.rubrics.Get(ctx, set.ID)
	if err != nil {
		return RubricSetOutcome{}, err
	}

	s.logger.Info().
		Str("rubric_set_id", stored.ID).
		Str("operation", operation).
		Int("criteria", len(criteria)).
		Msg("rubric set stored")

	return RubricSetOutcome{Set: dto.NewRubricSetResponse(stored), Operation: operation}, nil
}

func (s *rubricService) Get(ctx context.Context, id string) (dto.RubricSetResponse, error) {
	set, err := s.rubrics.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.RubricSetResponse{}, ErrRubricSetNotFound
		}
		return dto.RubricSetResponse{}, err
	}

	return dto.NewRubricSetResponse(set), nil
}

func (s *rubricService) List(ctx context.Context) ([]dto.RubricSetResponse, error) {
	sets, err := s.rubrics.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewRubricSetResponseSlice(sets), nil
}

func (s *rubricService) ListByTeacher(ctx context.Context, teacherID string) ([]dto.RubricSetResponse, error) {
	sets, err := s.rubrics.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	return dto.NewRubricSetResponseSlice(sets), nil
}
