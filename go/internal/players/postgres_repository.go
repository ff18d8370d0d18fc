package players

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/guessmoji/go/internal/models"
)

// Schema creates the players table.
const Schema = `
CREATE TABLE IF NOT EXISTS players (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    BIGINT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS players_name_key ON players (lower(name));
`

// PostgresRepository keeps accounts in Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects with cfg and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, cfg *pgxpool.Config) (*PostgresRepository, error) {
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create players schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) CreatePlayer(ctx context.Context, account models.PlayerAccount) error {
	_, err := r.pool.Exec(ctx,
		"INSERT INTO players (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)",
		account.ID, account.Name, account.Email, account.PasswordHash, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 is unique_violation
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrNameTaken
		}
		return classify(err)
	}
	return nil
}

func (r *PostgresRepository) GetPlayer(ctx context.Context, id string) (*models.PlayerAccount, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT id, name, email, password_hash, created_at FROM players WHERE id = $1", id)
	return scanPlayer(row)
}

func (r *PostgresRepository) GetPlayerByName(ctx context.Context, name string) (*models.PlayerAccount, error) {
	row := r.pool.QueryRow(ctx,
		"SELECT id, name, email, password_hash, created_at FROM players WHERE lower(name) = $1", nameKey(name))
	return scanPlayer(row)
}

func scanPlayer(row pgx.Row) (*models.PlayerAccount, error) {
	var p models.PlayerAccount
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPlayerNotFound
		}
		return nil, classify(err)
	}
	return &p, nil
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}
