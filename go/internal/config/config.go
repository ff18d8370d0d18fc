// Package config loads service settings from a YAML file layered over
// defaults, then applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/guessmoji/go/internal/dbconfig"
	"github.com/mcdev12/guessmoji/go/internal/events"
	"github.com/mcdev12/guessmoji/go/internal/game"
	"github.com/mcdev12/guessmoji/go/internal/rooms"
	"github.com/mcdev12/guessmoji/go/internal/store"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
)

// Player repositories.
const (
	PlayersStore    = "store"
	PlayersPostgres = "postgres"
)

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Store    StoreConfig   `yaml:"store"`
	Players  PlayersConfig `yaml:"players"`
	Game     GameConfig    `yaml:"game"`
	Events   EventsConfig  `yaml:"events"`
	Gateway  GatewayConfig `yaml:"gateway"`
	Session  SessionConfig `yaml:"session"`

	Postgres dbconfig.Config `yaml:"postgres"`
}

type StoreConfig struct {
	Backend             string          `yaml:"backend"`
	QueryTimeout        time.Duration   `yaml:"query_timeout"`
	TransactionAttempts int             `yaml:"transaction_attempts"`
	Mongo               MongoConfig     `yaml:"mongo"`
	Firestore           FirestoreConfig `yaml:"firestore"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type FirestoreConfig struct {
	ProjectID string `yaml:"project_id"`
	Root      string `yaml:"root"`
}

type PlayersConfig struct {
	Repository string `yaml:"repository"`
}

type GameConfig struct {
	TurnDuration time.Duration `yaml:"turn_duration"`
	MaxPlayers   int           `yaml:"max_players"`
	CodeDigits   int           `yaml:"code_digits"`
	CodeAttempts int           `yaml:"code_attempts"`
	Palette      []string      `yaml:"palette"`
}

type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type GatewayConfig struct {
	Port           string        `yaml:"port"`
	JWTSecret      string        `yaml:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl"`
	ChatRate       float64       `yaml:"chat_rate"`
	ChatBurst      int           `yaml:"chat_burst"`
	GuessRate      float64       `yaml:"guess_rate"`
	GuessBurst     int           `yaml:"guess_burst"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// URL is where the terminal client reaches the gateway.
	URL string `yaml:"url"`
}

type SessionConfig struct {
	Path string `yaml:"path"`
}

// Default returns the settings used for anything the file leaves out.
func Default() *Config {
	jetstream := events.DefaultJetStreamConfig()
	storeOpts := store.DefaultOptions()
	roomCfg := rooms.DefaultConfig()
	gameCfg := game.DefaultConfig()

	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Backend:             BackendMemory,
			QueryTimeout:        storeOpts.OpTimeout,
			TransactionAttempts: storeOpts.MaxAttempts,
			Mongo: MongoConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "guessmoji",
				ConnectTimeout: 10 * time.Second,
			},
			Firestore: FirestoreConfig{Root: "guessmoji"},
		},
		Postgres: dbconfig.Default(),
		Players:  PlayersConfig{Repository: PlayersStore},
		Game: GameConfig{
			TurnDuration: gameCfg.TurnDuration,
			MaxPlayers:   roomCfg.MaxPlayers,
			CodeDigits:   roomCfg.CodeDigits,
			CodeAttempts: roomCfg.CodeAttempts,
			Palette:      append([]string(nil), gameCfg.Palette...),
		},
		Events: EventsConfig{
			NATSURL:       jetstream.URL,
			Stream:        jetstream.StreamName,
			SubjectPrefix: jetstream.SubjectPrefix,
		},
		Gateway: GatewayConfig{
			Port:           "8080",
			TokenTTL:       7 * 24 * time.Hour,
			ChatRate:       2,
			ChatBurst:      5,
			GuessRate:      1,
			GuessBurst:     3,
			AllowedOrigins: []string{"*"},
			URL:            "http://localhost:8080",
		},
		Session: SessionConfig{Path: defaultSessionPath()},
	}
}

// Load reads path over the defaults, applies the environment and validates.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Store.Backend = getEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Mongo.URI = getEnv("MONGO_URI", c.Store.Mongo.URI)
	c.Store.Firestore.ProjectID = getEnv("FIRESTORE_PROJECT_ID", c.Store.Firestore.ProjectID)
	c.Players.Repository = getEnv("PLAYERS_REPOSITORY", c.Players.Repository)
	c.Gateway.Port = getEnv("PORT", c.Gateway.Port)
	c.Gateway.JWTSecret = getEnv("JWT_SECRET", c.Gateway.JWTSecret)
	c.Gateway.URL = getEnv("GATEWAY_URL", c.Gateway.URL)
	c.Session.Path = getEnv("SESSION_PATH", c.Session.Path)
	c.Game.TurnDuration = getEnvAsDuration("TURN_DURATION", c.Game.TurnDuration)
	c.Game.MaxPlayers = getEnvAsInt("MAX_PLAYERS", c.Game.MaxPlayers)
	if url := os.Getenv("NATS_URL"); url != "" {
		c.Events.NATSURL = url
		c.Events.Enabled = true
	}
	c.Postgres.ApplyEnv()
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Store.Backend {
	case BackendMemory, BackendPostgres, BackendMongo, BackendFirestore:
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}
	if c.Store.Backend == BackendFirestore && c.Store.Firestore.ProjectID == "" {
		errs = append(errs, errors.New("store.firestore.project_id is required"))
	}
	if c.Store.TransactionAttempts < 1 {
		errs = append(errs, errors.New("store.transaction_attempts must be positive"))
	}
	if c.Store.Backend == BackendPostgres || c.Players.Repository == PlayersPostgres {
		if err := c.Postgres.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	switch c.Players.Repository {
	case PlayersStore, PlayersPostgres:
	default:
		errs = append(errs, fmt.Errorf("players.repository: unknown repository %q", c.Players.Repository))
	}
	if c.Game.TurnDuration <= 0 {
		errs = append(errs, errors.New("game.turn_duration must be positive"))
	}
	if c.Game.MaxPlayers < 2 {
		errs = append(errs, errors.New("game.max_players must be at least 2"))
	}
	if c.Game.CodeDigits < 1 || c.Game.CodeDigits > 9 {
		errs = append(errs, errors.New("game.code_digits must be between 1 and 9"))
	}
	if c.Game.CodeAttempts < 1 {
		errs = append(errs, errors.New("game.code_attempts must be positive"))
	}
	if len(c.Game.Palette) == 0 {
		errs = append(errs, errors.New("game.palette must not be empty"))
	}
	for _, symbol := range c.Game.Palette {
		if strings.TrimSpace(symbol) == "" {
			errs = append(errs, errors.New("game.palette contains a blank symbol"))
			break
		}
	}
	if c.Gateway.ChatRate <= 0 || c.Gateway.GuessRate <= 0 {
		errs = append(errs, errors.New("gateway rates must be positive"))
	}
	if c.Gateway.ChatBurst < 1 || c.Gateway.GuessBurst < 1 {
		errs = append(errs, errors.New("gateway bursts must be positive"))
	}
	if c.Gateway.TokenTTL <= 0 {
		errs = append(errs, errors.New("gateway.token_ttl must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// StoreOptions returns the path store settings.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		MaxAttempts: c.Store.TransactionAttempts,
		OpTimeout:   c.Store.QueryTimeout,
	}
}

// Rooms returns the room directory settings.
func (c *Config) Rooms() rooms.Config {
	return rooms.Config{
		MaxPlayers:   c.Game.MaxPlayers,
		CodeDigits:   c.Game.CodeDigits,
		CodeAttempts: c.Game.CodeAttempts,
	}
}

// Engine returns the game engine settings.
func (c *Config) Engine() game.Config {
	return game.Config{
		TurnDuration: c.Game.TurnDuration,
		Palette:      c.Game.Palette,
	}
}

// JetStream returns the event publisher settings.
func (c *Config) JetStream() events.JetStreamConfig {
	cfg := events.DefaultJetStreamConfig()
	cfg.URL = c.Events.NATSURL
	cfg.StreamName = c.Events.Stream
	cfg.SubjectPrefix = c.Events.SubjectPrefix
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "guessmoji-session.db"
	}
	return filepath.Join(dir, "guessmoji", "session.db")
}
