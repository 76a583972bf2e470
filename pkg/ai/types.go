package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrMalformedResponse indicates the model reply could not be parsed into
	// the expected JSON structure even after salvage.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrExtractionFailed indicates no usable text could be obtained from a
	// document, so no model call was made.
	ErrExtractionFailed = errors.New("no text could be extracted from document")
)

// Criterion is one gradable dimension of a rubric: a stable key, a human
// title, an optional description and the maximum obtainable score.
type Criterion struct {
	Key         string  `json:"key"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	MaxScore    float64 `json:"max_score"`
}

// CriterionScore is the graded outcome for a single criterion. Matched is
// false when the model response contained no usable entry for the criterion,
// in which case the score contributes nothing to the total.
type CriterionScore struct {
	Key      string  `json:"key"`
	Title    string  `json:"title"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback,omitempty"`
	Matched  bool    `json:"matched"`
}

// GradeResult is the structured outcome of grading one report against one
// rubric. TotalScore is the 2-decimal rounded sum of matched criterion
// scores; MaxScore is the nominal maximum (criterion count x 10).
type GradeResult struct {
	Scores          []CriterionScore `json:"scores"`
	OverallFeedback string           `json:"overall_feedback,omitempty"`
	TotalScore      float64          `json:"total_score"`
	MaxScore        float64          `json:"max_score"`
	RawPreview      string           `json:"raw_preview,omitempty"`
}

// BluebookFields holds the values read from an answer-booklet cover crop.
// The marks grid is kept opaque: handwriting recognition output is too
// irregular to type field-by-field.
type BluebookFields struct {
	USN         string          `json:"usn"`
	SubjectCode string          `json:"subject_code"`
	CIEMarks    json.RawMessage `json:"cie_marks,omitempty"`
}

// RubricExtractor converts a rubric document into an ordered criteria list.
type RubricExtractor interface {
	ExtractCriteria(ctx context.Context, doc Document) ([]Criterion, error)
}

// Grader scores a report document against a criteria list.
type Grader interface {
	GradeReport(ctx context.Context, report Document, criteria []Criterion) (GradeResult, error)
}

// BluebookReader extracts cover-page fields from a booklet image crop.
type BluebookReader interface {
	ExtractBluebook(ctx context.Context, image []byte, mimeType string) (BluebookFields, error)
}

// Document is a local file prepared for a model call.
type Document struct {
	Path  string
	Name  string
	MIME  string
	Bytes []byte
}

// LoadDocument reads a file from disk and sniffs its MIME type.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read document: %w", err)
	}

	return Document{
		Path:  path,
		Name:  filepath.Base(path),
		MIME:  mimetype.Detect(data).String(),
		Bytes: data,
	}, nil
}
