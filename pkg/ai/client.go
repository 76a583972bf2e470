package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxAttachBytes caps inline document attachments; anything larger goes
// through the local text-extraction fallback.
const maxAttachBytes = 20 << 20

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "edulens",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of model requests",
	}, []string{"operation", "model"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "edulens",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed model requests",
	}, []string{"operation", "model"})
)

// Config defines connection and sampling options for the model client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// Client talks to an OpenAI-compatible chat endpoint and implements
// RubricExtractor, Grader and BluebookReader. Construct it once at process
// start and pass it by reference; it holds no mutable state.
type Client struct {
	api    *openai.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewClient builds a model client from the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		apiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/edulens/edulens-api/pkg/ai"),
		logger: cfg.Logger.With().Str("component", "ai_client").Logger(),
	}, nil
}

// complete runs one chat completion and returns the trimmed reply text.
// jsonMode requests a JSON object response where the provider supports it;
// callers still treat the reply as untrusted free text.
func (c *Client) complete(parent context.Context, operation, model string, jsonMode bool, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, span := c.tracer.Start(parent, "ai."+operation, trace.WithAttributes(
		attribute.String("model", model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages:    messages,
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, request)
	requestDuration.WithLabelValues(operation, model).Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues(operation, model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from model")
		requestFailures.WithLabelValues(operation, model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// attachable reports whether the document can ride along as an inline
// data-URL part instead of going through text extraction.
func attachable(doc Document) bool {
	if len(doc.Bytes) == 0 || len(doc.Bytes) > maxAttachBytes {
		return false
	}
	switch {
	case strings.HasPrefix(doc.MIME, "application/pdf"),
		strings.HasPrefix(doc.MIME, "image/png"),
		strings.HasPrefix(doc.MIME, "image/jpeg"):
		return true
	}
	return false
}

func attachmentPart(mimeType string, data []byte) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		},
	}
}

func userMessageWithAttachment(prompt string, doc Document) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			attachmentPart(doc.MIME, doc.Bytes),
		},
	}
}

func userMessage(prompt string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}
}
