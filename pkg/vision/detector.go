// Package vision talks to the external detection service that locates form
// fields on answer-booklet photos, and crops the detected region for the
// vision model.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Class labels produced by the booklet detection model.
const (
	ClassUSNBox     = "USN_BOX"
	ClassSubjectBox = "SUBJECT_BOX"
	ClassCIE1Marks  = "CIE1_MARKS_BOX"
	ClassCIE2Marks  = "CIE2_MARKS_BOX"
)

// BluebookClasses lists every field class the booklet detector can emit.
var BluebookClasses = []string{ClassUSNBox, ClassSubjectBox, ClassCIE1Marks, ClassCIE2Marks}

// DefaultConfidence filters out low-quality detections.
const DefaultConfidence = 0.25

// Detection is one labelled bounding box returned by the detector.
type Detection struct {
	ClassName  string     `json:"class_name"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// Detector finds labelled boxes in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte, mimeType string) ([]Detection, error)
}

// DetectorConfig configures the HTTP detector client.
type DetectorConfig struct {
	URL        string
	Confidence float64
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// HTTPDetector posts images to a detection endpoint and filters the returned
// boxes by confidence.
type HTTPDetector struct {
	url        string
	confidence float64
	client     *http.Client
	logger     zerolog.Logger
}

// NewHTTPDetector builds a detector client for the given endpoint.
func NewHTTPDetector(cfg DetectorConfig) (*HTTPDetector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("detector url is required")
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = DefaultConfidence
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPDetector{
		url:        cfg.URL,
		confidence: cfg.Confidence,
		client:     &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.With().Str("component", "vision_detector").Logger(),
	}, nil
}

// Detect uploads the image and returns detections at or above the configured
// confidence threshold.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte, mimeType string) ([]Detection, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image")
	if err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}
	if err := writer.WriteField("confidence", fmt.Sprintf("%.2f", d.confidence)); err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, body)
	if err != nil {
		return nil, fmt.Errorf("build detector request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detector: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned status %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var parsed struct {
		Detections []Detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode detector response: %w", err)
	}

	kept := parsed.Detections[:0]
	for _, detection := range parsed.Detections {
		if detection.Confidence >= d.confidence {
			kept = append(kept, detection)
		}
	}

	d.logger.Debug().Int("total", len(parsed.Detections)).Int("kept", len(kept)).Msg("detector response filtered")
	return kept, nil
}
