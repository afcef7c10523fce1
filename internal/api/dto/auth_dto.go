package dto

import "github.com/spec-kit/ticket-client/internal/domain"

// LoginRequest payload for POST /auth/login/.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest payload for POST /auth/register/.
type RegisterRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// AuthResponse is the shared success shape of login and register.
type AuthResponse struct {
	User   domain.UserProfile `json:"user"`
	Tokens domain.Credentials `json:"tokens"`
}

// RefreshRequest payload for POST /auth/token/refresh/.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the replacement access token.
type RefreshResponse struct {
	Access string `json:"access"`
}

// LogoutRequest payload for POST /auth/logout/.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}
