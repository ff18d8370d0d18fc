// Package players manages player accounts: registration, login and lookup.
package players

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

const (
	MaxNameRunes      = 32
	MinPasswordLength = 6
)

// App handles player business logic
type App struct {
	repo   Repository
	hasher Hasher
	clock  clockwork.Clock
}

// NewApp creates a new players App
func NewApp(repo Repository, hasher Hasher, clock clockwork.Clock) *App {
	return &App{
		repo:   repo,
		hasher: hasher,
		clock:  clock,
	}
}

// Register creates an account. Names are unique regardless of case.
func (a *App) Register(ctx context.Context, req RegisterRequest) (*models.PlayerAccount, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRegisterRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	hash, err := a.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate player id: %w", err)
	}

	account := models.PlayerAccount{
		ID:           id.String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    a.clock.Now().UnixMilli(),
	}
	if err := a.repo.CreatePlayer(ctx, account); err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to create player: %w", err))
	}

	log.Info().Str("player_id", account.ID).Str("name", account.Name).Msg("player registered")
	return &account, nil
}

// Login returns the account matching name and password. Unknown names and
// wrong passwords are indistinguishable to the caller.
func (a *App) Login(ctx context.Context, name, password string) (*models.PlayerAccount, error) {
	account, err := a.repo.GetPlayerByName(ctx, strings.TrimSpace(name))
	if errors.Is(err, models.ErrPlayerNotFound) {
		return nil, models.ErrIncorrectLogin
	}
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to look up player: %w", err))
	}

	match, err := a.hasher.Compare(account.PasswordHash, password)
	if err != nil {
		log.Warn().Err(err).Str("player_id", account.ID).Msg("stored password hash is unreadable")
		return nil, models.ErrIncorrectLogin
	}
	if !match {
		return nil, models.ErrIncorrectLogin
	}
	return account, nil
}

// Get retrieves an account by id.
func (a *App) Get(ctx context.Context, id string) (*models.PlayerAccount, error) {
	account, err := a.repo.GetPlayer(ctx, id)
	if err != nil {
		return nil, models.Unavailable(fmt.Errorf("failed to get player: %w", err))
	}
	return account, nil
}

func validateRegisterRequest(req RegisterRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", models.ErrInvalidState)
	}
	if utf8.RuneCountInString(req.Name) > MaxNameRunes {
		return fmt.Errorf("%w: name is longer than %d characters", models.ErrInvalidState, MaxNameRunes)
	}
	if strings.ContainsAny(req.Name, "/") || req.Name == "." || req.Name == ".." {
		return fmt.Errorf("%w: name contains invalid characters", models.ErrInvalidState)
	}
	if req.Email == "" {
		return fmt.Errorf("%w: email is required", models.ErrInvalidState)
	}
	at := strings.Index(req.Email, "@")
	if at < 1 || !strings.Contains(req.Email[at:], ".") {
		return fmt.Errorf("%w: email format is invalid", models.ErrInvalidState)
	}
	if len(req.Password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidState, MinPasswordLength)
	}
	return nil
}

// nameKey is the case-folded form names are unique under.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
