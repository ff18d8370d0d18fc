// Package dbconfig holds the Postgres settings shared by the document store
// backend and the player repository.
package dbconfig

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the postgres: section of the service config.
type Config struct {
	// URL replaces the discrete connection fields when set.
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`

	// ListenerURL is the session-mode connection that holds LISTEN for
	// store subscriptions. Defaults to the main connection.
	ListenerURL          string        `yaml:"listener_url"`
	ListenerMinReconnect time.Duration `yaml:"listener_min_reconnect"`
	ListenerMaxReconnect time.Duration `yaml:"listener_max_reconnect"`

	// database/sql pool used by the store backend
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// PoolSize caps the pgx pool of the player repository.
	PoolSize int32 `yaml:"pool_size"`
}

// Default returns a local development database.
func Default() Config {
	return Config{
		Host:                 "localhost",
		Port:                 5432,
		User:                 "postgres",
		Password:             "postgres",
		Database:             "guessmoji",
		SSLMode:              "disable",
		ListenerMinReconnect: 10 * time.Second,
		ListenerMaxReconnect: time.Minute,
		MaxOpenConns:         20,
		MaxIdleConns:         5,
		ConnMaxLifetime:      30 * time.Minute,
		PoolSize:             10,
	}
}

// ApplyEnv overrides fields with the DB_* variables that are set.
func (c *Config) ApplyEnv() {
	c.URL = getEnv("DATABASE_URL", c.URL)
	c.ListenerURL = getEnv("DB_LISTENER_URL", c.ListenerURL)
	c.Host = getEnv("DB_HOST", c.Host)
	c.User = getEnv("DB_USER", c.User)
	c.Password = getEnv("DB_PASSWORD", c.Password)
	c.Database = getEnv("DB_NAME", c.Database)
	c.SSLMode = getEnv("DB_SSLMODE", c.SSLMode)
	if port, err := strconv.Atoi(os.Getenv("DB_PORT")); err == nil {
		c.Port = port
	}
	if size, err := strconv.ParseInt(os.Getenv("DB_POOL_SIZE"), 10, 32); err == nil {
		c.PoolSize = int32(size)
	}
}

// Validate reports settings no connection can be opened with.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		if c.Host == "" || c.Database == "" {
			errs = append(errs, errors.New("host and database are required without url"))
		}
		if c.Port < 1 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
		}
	}
	if c.MaxOpenConns < 1 || c.PoolSize < 1 {
		errs = append(errs, errors.New("max_open_conns and pool_size must be positive"))
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		errs = append(errs, errors.New("max_idle_conns exceeds max_open_conns"))
	}
	if c.ListenerMinReconnect <= 0 || c.ListenerMaxReconnect < c.ListenerMinReconnect {
		errs = append(errs, errors.New("listener reconnect intervals must be positive and ordered"))
	}
	return errors.Join(errs...)
}

// DSN returns the Postgres connection URL.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ListenerDSN returns the connection URL LISTEN runs on.
func (c Config) ListenerDSN() string {
	if c.ListenerURL != "" {
		return c.ListenerURL
	}
	return c.DSN()
}

// Configure applies the pool limits to db.
func (c Config) Configure(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
}

// PoolConfig returns the pgx pool settings for DSN.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if c.PoolSize > 0 {
		pc.MaxConns = c.PoolSize
	}
	return pc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
