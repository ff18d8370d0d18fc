package players

import (
	"context"
	"fmt"
	"strings"

	"github.com/mcdev12/guessmoji/go/internal/models"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

// StoreRepository keeps accounts in the state store under players/<id>,
// with a player_names/<name> document reserving each name.
type StoreRepository struct {
	store store.Store
}

// NewStoreRepository creates a new store-backed repository
func NewStoreRepository(st store.Store) *StoreRepository {
	return &StoreRepository{store: st}
}

type nameClaim struct {
	PlayerID string `json:"player_id"`
}

func playerPath(id string) string {
	return store.Join("players", id)
}

func namePath(name string) string {
	return store.Join("player_names", nameKey(name))
}

// CreatePlayer reserves the name, then writes the account.
func (r *StoreRepository) CreatePlayer(ctx context.Context, account models.PlayerAccount) error {
	_, err := r.store.RunTransaction(ctx, namePath(account.Name), func(cur store.Snapshot) (any, error) {
		if cur.Exists() {
			return nil, models.ErrNameTaken
		}
		return nameClaim{PlayerID: account.ID}, nil
	})
	if err != nil {
		return err
	}

	if err := r.store.Set(ctx, playerPath(account.ID), account); err != nil {
		// release the name so the player can try again
		if derr := r.store.Delete(ctx, namePath(account.Name)); derr != nil {
			return fmt.Errorf("failed to store player: %w (and failed to release name: %v)", err, derr)
		}
		return fmt.Errorf("failed to store player: %w", err)
	}
	return nil
}

// GetPlayer retrieves an account by id
func (r *StoreRepository) GetPlayer(ctx context.Context, id string) (*models.PlayerAccount, error) {
	if id == "" {
		return nil, models.ErrPlayerNotFound
	}
	snap, err := r.store.Get(ctx, playerPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	account, err := store.DecodeOptional[models.PlayerAccount](snap)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, models.ErrPlayerNotFound
	}
	return account, nil
}

// GetPlayerByName retrieves an account through the name index
func (r *StoreRepository) GetPlayerByName(ctx context.Context, name string) (*models.PlayerAccount, error) {
	switch key := nameKey(name); {
	case key == "", key == ".", key == "..", strings.Contains(key, "/"):
		return nil, models.ErrPlayerNotFound
	}
	snap, err := r.store.Get(ctx, namePath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to get player name: %w", err)
	}
	claim, err := store.DecodeOptional[nameClaim](snap)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, models.ErrPlayerNotFound
	}
	return r.GetPlayer(ctx, claim.PlayerID)
}
