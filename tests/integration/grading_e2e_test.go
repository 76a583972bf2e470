package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/config"
	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/handler"
	"github.com/edulens/edulens-api/internal/middleware"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
	"github.com/edulens/edulens-api/internal/router"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/pkg/ai"
)

const e2eSecret = "integration-secret"

type scriptedExtractor struct {
	criteria []ai.Criterion
}

func (s scriptedExtractor) ExtractCriteria(context.Context, ai.Document) ([]ai.Criterion, error) {
	return s.criteria, nil
}

type scriptedGrader struct {
	results []ai.GradeResult
	calls   int
}

func (s *scriptedGrader) GradeReport(context.Context, ai.Document, []ai.Criterion) (ai.GradeResult, error) {
	result := s.results[s.calls%len(s.results)]
	s.calls++
	return result, nil
}

func setupEvaluationApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:grading_e2e_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.RubricSet{}, &models.Submission{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	extractor := scriptedExtractor{criteria: []ai.Criterion{
		{Key: "introduction", Title: "Introduction", MaxScore: 10},
		{Key: "methodology", Title: "Methodology", MaxScore: 10},
	}}
	grader := &scriptedGrader{results: []ai.GradeResult{
		{
			Scores: []ai.CriterionScore{
				{Key: "introduction", Score: 6, Matched: true},
				{Key: "methodology", Score: 5, Matched: true},
			},
			TotalScore: 11,
			MaxScore:   20,
		},
		{
			Scores: []ai.CriterionScore{
				{Key: "introduction", Score: 8, Matched: true},
				{Key: "methodology", Score: 8.5, Matched: true},
			},
			TotalScore: 16.5,
			MaxScore:   20,
		},
	}}

	userRepo := repository.NewUserRepository(db)
	rubricSetRepo := repository.NewRubricSetRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	authService := service.NewAuthService(userRepo, validate, service.AuthConfig{
		JWTSecret: e2eSecret,
		TokenTTL:  time.Hour,
	}, logger)
	rubricService := service.NewRubricService(rubricSetRepo, extractor, logger)
	dashboardService := service.NewDashboardService(rubricSetRepo, submissionRepo, nil, 0, logger)
	submissionService := service.NewSubmissionService(submissionRepo, rubricSetRepo, grader, nil, nil, dashboardService, logger)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, config.Config{AppName: "edulens-e2e"}, router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(authService, logger),
		RubricHandler:     handler.NewRubricHandler(rubricService, submissionService, validate, 10<<20, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, validate, 10<<20, logger),
		DashboardHandler:  handler.NewDashboardHandler(dashboardService, logger),
		JWTMiddleware:     middleware.JWTProtected(e2eSecret),
	})

	return app
}

func decode[T any](t *testing.T, resp *http.Response, target *T) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target))
}

func registerAndLogin(t *testing.T, app *fiber.App, role, usn, name string) (string, string) {
	t.Helper()

	registerBody, err := json.Marshal(dto.RegisterRequest{Role: role, USN: usn, Name: name, Password: "secret123"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/auth/register", bytes.NewReader(registerBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var registered struct {
		Data dto.UserResponse `json:"data"`
	}
	decode(t, resp, &registered)

	loginBody, err := json.Marshal(dto.LoginRequest{UserID: registered.Data.ID, Password: "secret123"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/api/v2/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var logged struct {
		Data dto.AuthResponse `json:"data"`
	}
	decode(t, resp, &logged)
	require.NotEmpty(t, logged.Data.Token)

	return registered.Data.ID, logged.Data.Token
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestGradingEndToEndFlow(t *testing.T) {
	app := setupEvaluationApp(t)

	// Step 1: a teacher and a student each register and log in.
	_, teacherToken := registerAndLogin(t, app, "teacher", "", "Prof. Meena Iyer")
	studentID, studentToken := registerAndLogin(t, app, "student", "1ms22cs042", "Asha Rao")
	require.Equal(t, "1MS22CS042", studentID)

	// Step 2: the teacher uploads a rubric with a deadline and two attempts.
	deadline := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	rubricReq := multipartRequest(t, "/api/v2/rubrics", teacherToken, map[string]string{
		"title":        "DBMS Mini Project",
		"deadline":     deadline,
		"max_attempts": "2",
	}, "dbms-rubric.txt", []byte("Criteria: introduction, methodology"))
	rubricResp, err := app.Test(rubricReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, rubricResp.StatusCode)

	var rubric struct {
		Data dto.RubricUploadResponse `json:"data"`
	}
	decode(t, rubricResp, &rubric)
	require.Equal(t, "inserted", rubric.Data.Operation)
	require.NotEmpty(t, rubric.Data.RubricSetID)
	setID := rubric.Data.RubricSetID

	// Step 3: the student's first attempt is graded and stored.
	firstReq := multipartRequest(t, "/api/v2/submissions", studentToken,
		map[string]string{"rubric_set_id": setID}, "report.txt", []byte("first draft"))
	firstResp, err := app.Test(firstReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, firstResp.StatusCode)

	var first struct {
		Data dto.GradeOutcomeResponse `json:"data"`
	}
	decode(t, firstResp, &first)
	require.Equal(t, 1, first.Data.AttemptNumber)
	require.NotNil(t, first.Data.AttemptsRemaining)
	require.Equal(t, 1, *first.Data.AttemptsRemaining)
	require.InDelta(t, 11, first.Data.Result.TotalScore, 0.001)

	// Step 4: the second attempt replaces the stored result.
	secondReq := multipartRequest(t, "/api/v2/submissions", studentToken,
		map[string]string{"rubric_set_id": setID}, "report.txt", []byte("better draft"))
	secondResp, err := app.Test(secondReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, secondResp.StatusCode)

	var second struct {
		Data dto.GradeOutcomeResponse `json:"data"`
	}
	decode(t, secondResp, &second)
	require.Equal(t, 2, second.Data.AttemptNumber)
	require.Equal(t, 0, *second.Data.AttemptsRemaining)
	require.Equal(t, "updated", second.Data.Operation)
	require.InDelta(t, 16.5, second.Data.Result.TotalScore, 0.001)

	// Step 5: the attempt limit now rejects a third try.
	thirdReq := multipartRequest(t, "/api/v2/submissions", studentToken,
		map[string]string{"rubric_set_id": setID}, "report.txt", []byte("third draft"))
	thirdResp, err := app.Test(thirdReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, thirdResp.StatusCode)

	// Step 6: the dashboard reflects the final standing.
	dashReq := httptest.NewRequest(http.MethodGet, "/api/v2/dashboard", nil)
	dashReq.Header.Set("Authorization", "Bearer "+studentToken)
	dashResp, err := app.Test(dashReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, dashResp.StatusCode)

	var dashboard struct {
		Data dto.DashboardResponse `json:"data"`
	}
	decode(t, dashResp, &dashboard)
	require.Equal(t, studentID, dashboard.Data.StudentID)
	require.Len(t, dashboard.Data.Entries, 1)
	entry := dashboard.Data.Entries[0]
	require.Equal(t, setID, entry.RubricSetID)
	require.Equal(t, 2, entry.AttemptsUsed)
	require.NotNil(t, entry.AttemptsRemaining)
	require.Equal(t, 0, *entry.AttemptsRemaining)
	require.NotNil(t, entry.TotalScore)
	require.InDelta(t, 16.5, *entry.TotalScore, 0.001)

	// Step 7: the teacher sees exactly one submission row for the set,
	// carrying the latest attempt.
	listReq := httptest.NewRequest(http.MethodGet, "/api/v2/rubrics/"+setID+"/submissions", nil)
	listReq.Header.Set("Authorization", "Bearer "+teacherToken)
	listResp, err := app.Test(listReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, listResp.StatusCode)

	var submissions struct {
		Data []dto.SubmissionResponse `json:"data"`
	}
	decode(t, listResp, &submissions)
	require.Len(t, submissions.Data, 1)
	require.Equal(t, studentID, submissions.Data[0].StudentID)
	require.Equal(t, 2, submissions.Data[0].AttemptNumber)

	// Step 8: a student token cannot upload rubrics.
	forbiddenReq := multipartRequest(t, "/api/v2/rubrics", studentToken,
		nil, "rubric.txt", []byte("criteria"))
	forbiddenResp, err := app.Test(forbiddenReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, forbiddenResp.StatusCode)
}
