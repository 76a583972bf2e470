package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/pkg/ai"
	"github.com/edulens/edulens-api/pkg/vision"
)

var (
	// ErrDetectionFailed indicates the field detector could not process the
	// image.
	ErrDetectionFailed = errors.New("field detection failed")
	// ErrNoBluebookDetected indicates the detector found none of the booklet
	// field boxes in the image.
	ErrNoBluebookDetected = errors.New("no bluebook fields detected")
)

// usnPattern is the expected seat-number shape after OCR cleanup.
var usnPattern = regexp.MustCompile(`^[1I]MS(22|23)CS\d{3}$`)

// CleanUSN normalizes the OCR confusions seen on handwritten seat numbers
// (letter O for zero, letter I for one). The cleaned form replaces the raw
// value only when it matches the expected shape.
func CleanUSN(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "O", "0")
	cleaned = strings.ReplaceAll(cleaned, "I", "1")
	if usnPattern.MatchString(cleaned) {
		return cleaned
	}

	return strings.TrimSpace(raw)
}

// BluebookInput describes one answer-booklet photo to process.
type BluebookInput struct {
	ImagePath string
	TeacherID string
}

// BluebookService runs the booklet pipeline: detect the cover fields, crop,
// extract with the vision model, clean up and persist.
type BluebookService interface {
	Process(ctx context.Context, input BluebookInput) (dto.BluebookResponse, error)
	List(ctx context.Context, teacherID string) ([]dto.BluebookResponse, error)
}

type bluebookService struct {
	records  repository.BluebookRepository
	detector vision.Detector
	reader   ai.BluebookReader
	uploader FileUploader
	logger   zerolog.Logger
}

// NewBluebookService constructs a BluebookService instance. The uploader may
// be nil; scans are then not archived.
func NewBluebookService(records repository.BluebookRepository, detector vision.Detector, reader ai.BluebookReader, uploader FileUploader, logger zerolog.Logger) BluebookService {
	return &bluebookService{
		records:  records,
		detector: detector,
		reader:   reader,
		uploader: uploader,
		logger:   logger.With().Str("component", "bluebook_service").Logger(),
	}
}

// Process extracts cover fields from one booklet photo. A record is stored
// only when a USN was read; the response always carries whatever fields the
// model produced.
func (s *bluebookService) Process(ctx context.Context, input BluebookInput) (dto.BluebookResponse, error) {
	if strings.TrimSpace(input.ImagePath) == "" {
		return dto.BluebookResponse{}, fmt.Errorf("%w: image path is required", ErrInvalidInput)
	}

	data, err := os.ReadFile(input.ImagePath)
	if err != nil {
		return dto.BluebookResponse{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	mime := mimetype.Detect(data)
	if !mime.Is("image/png") && !mime.Is("image/jpeg") {
		return dto.BluebookResponse{}, fmt.Errorf("%w: unsupported image type %s", ErrInvalidInput, mime.String())
	}

	detections, err := s.detector.Detect(ctx, data, mime.String())
	if err != nil {
		return dto.BluebookResponse{}, fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	union, ok := vision.UnionBox(detections)
	if !ok {
		return dto.BluebookResponse{}, ErrNoBluebookDetected
	}

	crop, err := vision.CropPadded(data, union, vision.DefaultCropPad)
	if err != nil {
		return dto.BluebookResponse{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	fields, err := s.reader.ExtractBluebook(ctx, crop, "image/jpeg")
	if err != nil {
		return dto.BluebookResponse{}, err
	}

	fields.USN = CleanUSN(fields.USN)
	sourceFile := filepath.Base(input.ImagePath)

	response := dto.BluebookResponse{
		USN:         fields.USN,
		SubjectCode: fields.SubjectCode,
		Marks:       fields.CIEMarks,
		SourceFile:  sourceFile,
	}

	if fields.USN == "" {
		s.logger.Warn().Str("source", sourceFile).Msg("no usn extracted, record not stored")
		return response, nil
	}

	archiveURL := s.archive(ctx, sourceFile, data)

	raw, err := json.Marshal(fields)
	if err != nil {
		return dto.BluebookResponse{}, err
	}

	record := models.BluebookRecord{
		TeacherID:   input.TeacherID,
		SourceFile:  sourceFile,
		ArchiveURL:  archiveURL,
		USN:         fields.USN,
		SubjectCode: fields.SubjectCode,
		Marks:       datatypes.JSON(fields.CIEMarks),
		Raw:         datatypes.JSON(raw),
	}

	if err := s.records.Create(ctx, &record); err != nil {
		return dto.BluebookResponse{}, err
	}

	s.logger.Info().Str("usn", record.USN).Str("source", sourceFile).Msg("bluebook record stored")

	return dto.NewBluebookResponse(record), nil
}

func (s *bluebookService) List(ctx context.Context, teacherID string) ([]dto.BluebookResponse, error) {
	records, err := s.records.ListByTeacher(ctx, strings.TrimSpace(teacherID))
	if err != nil {
		return nil, err
	}

	return dto.NewBluebookResponseSlice(records), nil
}

func (s *bluebookService) archive(ctx context.Context, name string, data []byte) string {
	if s.uploader == nil {
		return ""
	}

	url, err := s.uploader.Upload(ctx, name, bytes.NewReader(data))
	if err != nil {
		s.logger.Warn().Err(err).Msg("bluebook archive failed")
		return ""
	}

	return url
}
