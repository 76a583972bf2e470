package dto

import (
	"time"

	"github.com/edulens/edulens-api/internal/models"
)

// RegisterRequest creates a new account. Students register with their USN as
// the identifier; teachers get a generated identifier back.
type RegisterRequest struct {
	Role     string `json:"role" validate:"required,oneof=student teacher"`
	USN      string `json:"usn" validate:"required_if=Role student,omitempty,min=6,max=32"`
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthResponse carries a signed token plus the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// NewUserResponse converts a User model into a DTO.
func NewUserResponse(model models.User) UserResponse {
	return UserResponse{
		ID:        model.ID,
		Name:      model.Name,
		Role:      model.Role,
		CreatedAt: model.CreatedAt,
	}
}
