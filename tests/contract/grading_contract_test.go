package contract_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/handler"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/pkg/ai"
)

type stubSubmissionService struct {
	outcome service.SubmitOutcome
}

func (s stubSubmissionService) SubmitForGrading(context.Context, service.SubmitInput) (service.SubmitOutcome, error) {
	return s.outcome, nil
}

func (s stubSubmissionService) ListByStudent(context.Context, string) ([]dto.SubmissionResponse, error) {
	return nil, nil
}

func (s stubSubmissionService) ListByRubricSet(context.Context, string) ([]dto.SubmissionResponse, error) {
	return nil, nil
}

func TestGradeOutcomeContract(t *testing.T) {
	schemaPath, err := filepath.Abs(filepath.Join("..", "contracts", "grade_outcome.schema.json"))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)

	remaining := 1
	outcome := service.SubmitOutcome{
		Result: ai.GradeResult{
			Scores: []ai.CriterionScore{
				{Key: "introduction", Title: "Introduction", Score: 8, Feedback: "Score: 8/10, clear", Matched: true},
				{Key: "methodology", Title: "Methodology", Matched: false},
			},
			OverallFeedback: "Solid start",
			TotalScore:      8,
			MaxScore:        20,
			RawPreview:      `{"introduction": "Score: 8/10, clear"}`,
		},
		Operation:         "inserted",
		AttemptNumber:     1,
		AttemptsRemaining: &remaining,
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	submissionHandler := handler.NewSubmissionHandler(stubSubmissionService{outcome: outcome}, validate, 10<<20, zerolog.Nop())

	app := fiber.New()
	group := app.Group("/api/v2/submissions", func(c *fiber.Ctx) error {
		c.Locals("user_id", "1MS22CS042")
		c.Locals("user_role", "student")
		return c.Next()
	})
	submissionHandler.Register(group)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("rubric_set_id", "set-1"))
	part, err := writer.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("report body"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v2/submissions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var payload interface{}
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.NoError(t, schema.Validate(payload))
}

var _ service.SubmissionService = stubSubmissionService{}
