package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/edulens/edulens-api/internal/dto"
	"github.com/edulens/edulens-api/internal/models"
	"github.com/edulens/edulens-api/internal/repository"
)

var (
	// ErrUserExists indicates an account with the same identifier is already
	// registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound indicates the requested account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var teacherSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// AuthConfig carries token-signing parameters for the auth service.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// AuthService registers accounts and issues access tokens.
type AuthService interface {
	RegisterStudent(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error)
	RegisterTeacher(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error)
	Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error)
	Get(ctx context.Context, id string) (dto.UserResponse, error)
}

type authService struct {
	users     repository.UserRepository
	validator *validator.Validate
	config    AuthConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users repository.UserRepository, validate *validator.Validate, config AuthConfig, logger zerolog.Logger) AuthService {
	return &authService{
		users:     users,
		validator: validate,
		config:    config,
		logger:    logger.With().Str("component", "auth_service").Logger(),
		now:       time.Now,
	}
}

// RegisterStudent creates a student account keyed by the university seat
// number supplied in the payload.
func (s *authService) RegisterStudent(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	usn := strings.ToUpper(strings.TrimSpace(payload.USN))
	if usn == "" {
		return dto.UserResponse{}, fmt.Errorf("%w: usn is required", ErrInvalidInput)
	}

	user, err := s.createUser(ctx, usn, payload.Name, models.RoleStudent, payload.Password)
	if err != nil {
		return dto.UserResponse{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("student registered")
	return dto.NewUserResponse(user), nil
}

// RegisterTeacher creates a teacher account with a generated identifier of
// the form t_<name-slug>_<4 hex chars>.
func (s *authService) RegisterTeacher(ctx context.Context, payload dto.RegisterRequest) (dto.UserResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.UserResponse{}, err
	}

	id, err := generateTeacherID(payload.Name)
	if err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.createUser(ctx, id, payload.Name, models.RoleTeacher, payload.Password)
	if err != nil {
		return dto.UserResponse{}, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("teacher registered")
	return dto.NewUserResponse(user), nil
}

func (s *authService) createUser(ctx context.Context, id, name, role, password string) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		ID:           id,
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: string(hash),
	}

	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}

	return user, nil
}

// Login verifies credentials and returns a signed HS256 token.
func (s *authService) Login(ctx context.Context, payload dto.LoginRequest) (dto.AuthResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AuthResponse{}, err
	}

	user, err := s.users.Get(ctx, strings.TrimSpace(payload.UserID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AuthResponse{}, ErrInvalidCredentials
		}
		return dto.AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		return dto.AuthResponse{}, ErrInvalidCredentials
	}

	token, err := s.signToken(user)
	if err != nil {
		return dto.AuthResponse{}, err
	}

	return dto.AuthResponse{Token: token, User: dto.NewUserResponse(user)}, nil
}

func (s *authService) Get(ctx context.Context, id string) (dto.UserResponse, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserResponse{}, ErrUserNotFound
		}
		return dto.UserResponse{}, err
	}

	return dto.NewUserResponse(user), nil
}

func (s *authService) signToken(user models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"name": user.Name,
		"iat":  now.Unix(),
		"exp":  now.Add(s.config.TokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func generateTeacherID(name string) (string, error) {
	base := teacherSlugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	if len(base) > 20 {
		base = base[:20]
	}

	suffix := make([]byte, 2)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("generate teacher id: %w", err)
	}

	return fmt.Sprintf("t_%s_%s", base, hex.EncodeToString(suffix)), nil
}
