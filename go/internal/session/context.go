package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSession means nobody is signed in.
var ErrNoSession = errors.New("no player is signed in")

const (
	keyPlayerID   = "player_id"
	keyPlayerName = "player_name"
	keyToken      = "token"
)

// Context is the signed-in identity, passed explicitly to whatever acts on
// the player's behalf.
type Context struct {
	PlayerID   string
	PlayerName string
	Token      string
}

// Load reads the stored identity.
func Load(ctx context.Context, kv KV) (Context, error) {
	var (
		c   Context
		err error
	)
	if c.PlayerID, err = kv.Get(ctx, keyPlayerID); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Context{}, ErrNoSession
		}
		return Context{}, err
	}
	if c.PlayerName, err = optional(ctx, kv, keyPlayerName); err != nil {
		return Context{}, err
	}
	if c.Token, err = optional(ctx, kv, keyToken); err != nil {
		return Context{}, err
	}
	return c, nil
}

// Save stores c, replacing any previous identity.
func (c Context) Save(ctx context.Context, kv KV) error {
	if c.PlayerID == "" {
		return fmt.Errorf("session needs a player id")
	}
	for key, value := range map[string]string{
		keyPlayerID:   c.PlayerID,
		keyPlayerName: c.PlayerName,
		keyToken:      c.Token,
	} {
		if err := kv.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// Clear forgets the stored identity.
func Clear(ctx context.Context, kv KV) error {
	for _, key := range []string{keyPlayerID, keyPlayerName, keyToken} {
		if err := kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func optional(ctx context.Context, kv KV, key string) (string, error) {
	v, err := kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	return v, err
}
