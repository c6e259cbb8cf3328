package user

import (
	"context"
	"errors"

	myMiddleware "github.com/SCORPIA2004/CampusConnect/internal/middleware"
)

var (
	ErrEmailTaken         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = myMiddleware.ErrInvalidToken
)

// Store persists accounts keyed by their lowercase email.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	// GetUserByEmail reports found=false without error when no account exists.
	GetUserByEmail(ctx context.Context, email string) (User, bool, error)
}
