package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
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
)

const authTestSecret = "handler-test-secret"

func setupAuthApp(t *testing.T) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	authService := service.NewAuthService(repository.NewUserRepository(db), validate, service.AuthConfig{
		JWTSecret: authTestSecret,
		TokenTTL:  time.Hour,
	}, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "edulens-test"}, router.Dependencies{
		AuthHandler:   handler.NewAuthHandler(authService, logger),
		JWTMiddleware: middleware.JWTProtected(authTestSecret),
	})

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestAuthHandlerRegisterLoginMe(t *testing.T) {
	app := setupAuthApp(t)

	registerResp := postJSON(t, app, "/api/v2/auth/register", dto.RegisterRequest{
		Role:     "student",
		USN:      "1ms22cs042",
		Name:     "Asha Rao",
		Password: "secret123",
	})
	require.Equal(t, fiber.StatusCreated, registerResp.StatusCode)

	var registered struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Data    dto.UserResponse `json:"data"`
	}
	decodeResponse(t, registerResp, &registered)
	require.True(t, registered.Success)
	require.Equal(t, "account registered", registered.Message)
	require.Equal(t, "1MS22CS042", registered.Data.ID)
	require.Equal(t, models.RoleStudent, registered.Data.Role)

	loginResp := postJSON(t, app, "/api/v2/auth/login", dto.LoginRequest{
		UserID:   "1MS22CS042",
		Password: "secret123",
	})
	require.Equal(t, fiber.StatusOK, loginResp.StatusCode)

	var logged struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Data    dto.AuthResponse `json:"data"`
	}
	decodeResponse(t, loginResp, &logged)
	require.True(t, logged.Success)
	require.Equal(t, "login successful", logged.Message)
	require.NotEmpty(t, logged.Data.Token)
	require.Equal(t, "1MS22CS042", logged.Data.User.ID)

	meReq := httptest.NewRequest(http.MethodGet, "/api/v2/auth/me", nil)
	meReq.Header.Set("Authorization", "Bearer "+logged.Data.Token)
	meResp, err := app.Test(meReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, meResp.StatusCode)

	var me struct {
		Success bool             `json:"success"`
		Data    dto.UserResponse `json:"data"`
	}
	decodeResponse(t, meResp, &me)
	require.Equal(t, "1MS22CS042", me.Data.ID)
	require.Equal(t, "Asha Rao", me.Data.Name)

	anonReq := httptest.NewRequest(http.MethodGet, "/api/v2/auth/me", nil)
	anonResp, err := app.Test(anonReq, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, anonResp.StatusCode)
}

func TestAuthHandlerRegisterTeacherGeneratesID(t *testing.T) {
	app := setupAuthApp(t)

	resp := postJSON(t, app, "/api/v2/auth/register", dto.RegisterRequest{
		Role:     "teacher",
		Name:     "Prof. Meena Iyer",
		Password: "secret123",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var registered struct {
		Data dto.UserResponse `json:"data"`
	}
	decodeResponse(t, resp, &registered)
	require.True(t, strings.HasPrefix(registered.Data.ID, "t_"))
	require.Equal(t, models.RoleTeacher, registered.Data.Role)
}

func TestAuthHandlerDuplicateRegisterConflicts(t *testing.T) {
	app := setupAuthApp(t)

	payload := dto.RegisterRequest{
		Role:     "student",
		USN:      "1MS22CS007",
		Name:     "Ravi Kumar",
		Password: "secret123",
	}

	first := postJSON(t, app, "/api/v2/auth/register", payload)
	require.Equal(t, fiber.StatusCreated, first.StatusCode)

	second := postJSON(t, app, "/api/v2/auth/register", payload)
	require.Equal(t, fiber.StatusConflict, second.StatusCode)

	var conflict struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	decodeResponse(t, second, &conflict)
	require.False(t, conflict.Success)
	require.Equal(t, "user already exists", conflict.Message)
}

func TestAuthHandlerLoginRejectsBadCredentials(t *testing.T) {
	app := setupAuthApp(t)

	created := postJSON(t, app, "/api/v2/auth/register", dto.RegisterRequest{
		Role:     "student",
		USN:      "1MS22CS010",
		Name:     "Divya N",
		Password: "secret123",
	})
	require.Equal(t, fiber.StatusCreated, created.StatusCode)

	wrongPassword := postJSON(t, app, "/api/v2/auth/login", dto.LoginRequest{
		UserID:   "1MS22CS010",
		Password: "wrong-password",
	})
	require.Equal(t, fiber.StatusUnauthorized, wrongPassword.StatusCode)

	// Unknown accounts map to the same status so login cannot be used to
	// probe which identifiers exist.
	unknownUser := postJSON(t, app, "/api/v2/auth/login", dto.LoginRequest{
		UserID:   "1MS22CS999",
		Password: "secret123",
	})
	require.Equal(t, fiber.StatusUnauthorized, unknownUser.StatusCode)
}

func TestAuthHandlerRegisterValidatesPayload(t *testing.T) {
	app := setupAuthApp(t)

	resp := postJSON(t, app, "/api/v2/auth/register", dto.RegisterRequest{
		Role: "student",
		USN:  "1MS22CS011",
		Name: "No Password",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(body, target))
}
