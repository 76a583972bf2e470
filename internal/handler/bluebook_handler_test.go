package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/handler"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/service"
	"github.com/edulens/edulens-api/pkg/ai"
)

type stubBluebookSvc struct {
	response  dto.BluebookResponse
	records   []dto.BluebookResponse
	err       error
	calls     int
	lastInput service.BluebookInput
}

func (s *stubBluebookSvc) Process(_ context.Context, input service.BluebookInput) (dto.BluebookResponse, error) {
	s.calls++
	s.lastInput = input
	if s.err != nil {
		return dto.BluebookResponse{}, s.err
	}
	return s.response, nil
}

func (s *stubBluebookSvc) List(_ context.Context, _ string) ([]dto.BluebookResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func newBluebookApp(svc *stubBluebookSvc, userID, role string) *fiber.App {
	app := fiber.New()
	group := app.Group("/api/v2/bluebooks", func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		c.Locals("user_role", role)
		return c.Next()
	})
	handler.NewBluebookHandler(svc, 10<<20, zerolog.Nop()).Register(group)
	return app
}

// pngBytes carries the PNG signature so content sniffing accepts it.
func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
}

func postBluebook(t *testing.T, app *fiber.App, filename string, content []byte) *http.Response {
	t.Helper()

	body, contentType := buildMultipart(t, nil, "file", filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v2/bluebooks", body)
	req.Header.Set("Content-Type", contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestBluebookHandlerProcessesUpload(t *testing.T) {
	svc := &stubBluebookSvc{response: dto.BluebookResponse{
		ID:          1,
		USN:         "1MS22CS001",
		SubjectCode: "22CS42",
		Marks:       json.RawMessage(`{"q1":8}`),
		SourceFile:  "bluebook-001.png",
		Persisted:   true,
	}}

	app := newBluebookApp(svc, "t_meena_0a1b", models.RoleTeacher)
	resp := postBluebook(t, app, "bluebook-001.png", pngBytes())
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var payload struct {
		Success bool                 `json:"success"`
		Message string               `json:"message"`
		Data    dto.BluebookResponse `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.True(t, payload.Success)
	require.Equal(t, "bluebook processed", payload.Message)
	require.Equal(t, "1MS22CS001", payload.Data.USN)
	require.True(t, payload.Data.Persisted)

	require.Equal(t, 1, svc.calls)
	require.Equal(t, "t_meena_0a1b", svc.lastInput.TeacherID)
	require.NotEmpty(t, svc.lastInput.ImagePath)
}

func TestBluebookHandlerRejectsNonImage(t *testing.T) {
	svc := &stubBluebookSvc{}
	app := newBluebookApp(svc, "t_meena_0a1b", models.RoleTeacher)

	resp := postBluebook(t, app, "notes.txt", []byte("plain text"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Zero(t, svc.calls)
}

func TestBluebookHandlerMapsPipelineErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "nothing detected", err: service.ErrNoBluebookDetected, status: fiber.StatusUnprocessableEntity},
		{name: "detector down", err: service.ErrDetectionFailed, status: fiber.StatusBadGateway},
		{name: "model gibberish", err: ai.ErrMalformedResponse, status: fiber.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubBluebookSvc{err: tc.err}
			app := newBluebookApp(svc, "t_meena_0a1b", models.RoleTeacher)

			resp := postBluebook(t, app, "bluebook-001.png", pngBytes())
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestBluebookHandlerListsRecords(t *testing.T) {
	created := time.Now().UTC()
	svc := &stubBluebookSvc{records: []dto.BluebookResponse{
		{ID: 2, USN: "1MS22CS002", Persisted: true, CreatedAt: &created},
		{ID: 1, USN: "1MS22CS001", Persisted: true, CreatedAt: &created},
	}}

	app := newBluebookApp(svc, "t_meena_0a1b", models.RoleTeacher)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/bluebooks", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []dto.BluebookResponse `json:"data"`
	}
	decodeResponse(t, resp, &payload)
	require.Len(t, payload.Data, 2)
	require.Equal(t, "1MS22CS002", payload.Data[0].USN)
}

func TestBluebookHandlerRequiresTeacherRole(t *testing.T) {
	svc := &stubBluebookSvc{}
	app := newBluebookApp(svc, "1MS22CS042", models.RoleStudent)

	resp := postBluebook(t, app, "bluebook-001.png", pngBytes())
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	listResp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/bluebooks", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, listResp.StatusCode)
	require.Zero(t, svc.calls)
}

var _ service.BluebookService = (*stubBluebookSvc)(nil)
