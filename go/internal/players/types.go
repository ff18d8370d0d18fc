package players

import (
	"context"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

// RegisterRequest represents a request to create a player account
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login attempt
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// Hasher turns passwords into stored hashes and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) (bool, error)
}

// Repository defines what the app layer needs from player storage
type Repository interface {
	CreatePlayer(ctx context.Context, account models.PlayerAccount) error
	GetPlayer(ctx context.Context, id string) (*models.PlayerAccount, error)
	GetPlayerByName(ctx context.Context, name string) (*models.PlayerAccount, error)
}
