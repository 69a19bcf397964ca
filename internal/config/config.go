package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Driver selects which remote backend the query service talks to.
type Driver string

const (
	DriverSurreal  Driver = "surreal"
	DriverPostgres Driver = "postgres"
)

// Provider exposes configuration to the rest of the application without
// tying consumers to the concrete Config struct.
type Provider interface {
	RemoteDriver() Driver
	SurrealURL() string
	SurrealNS() string
	SurrealDB() string
	SurrealUser() string
	SurrealPass() string
	PostgresURL() string
	RealtimeURL() string
	LoginURL() string
	StorageURL() string
	TypingIdle() time.Duration
	SessionCloseTimeout() time.Duration
}

// Config holds all configuration for the client, loaded from the environment.
type Config struct {
	Driver       Driver `validate:"required,oneof=surreal postgres"`
	SurrealURLv  string `validate:"required_if=Driver surreal"`
	SurrealNSv   string `validate:"required_if=Driver surreal"`
	SurrealDBv   string `validate:"required_if=Driver surreal"`
	SurrealUserv string
	SurrealPassv string
	PostgresURLv string `validate:"required_if=Driver postgres"`
	RealtimeURLv string `validate:"required,url"`
	LoginURLv    string `validate:"required,url"`
	StorageURLv  string `validate:"omitempty,url"`

	TypingIdlev   time.Duration `validate:"gt=0"`
	CloseTimeoutv time.Duration `validate:"gt=0"`
}

const (
	defaultTypingIdle   = 1500 * time.Millisecond
	defaultCloseTimeout = 3 * time.Second
)

// New loads configuration from environment variables. A missing .env file is
// not an error; required variables must then come from the environment itself.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		Driver:       Driver(envOr("REMOTE_DRIVER", string(DriverSurreal))),
		SurrealURLv:  os.Getenv("SURREAL_URL"),
		SurrealNSv:   os.Getenv("SURREAL_NS"),
		SurrealDBv:   os.Getenv("SURREAL_DB"),
		SurrealUserv: os.Getenv("SURREAL_USER"),
		SurrealPassv: os.Getenv("SURREAL_PASS"),
		PostgresURLv: os.Getenv("POSTGRES_URL"),
		RealtimeURLv: os.Getenv("REALTIME_URL"),
		LoginURLv:    os.Getenv("LOGIN_URL"),
		StorageURLv:  os.Getenv("STORAGE_URL"),

		TypingIdlev:   envDurationOr("TYPING_IDLE_MS", defaultTypingIdle),
		CloseTimeoutv: envDurationOr("SESSION_CLOSE_TIMEOUT_MS", defaultCloseTimeout),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustNew is New for entrypoints where a bad environment should end the run.
func MustNew() *Config {
	cfg, err := New()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		log.Printf("Ignoring invalid %s=%q, using default", key, v)
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) RemoteDriver() Driver               { return c.Driver }
func (c *Config) SurrealURL() string                 { return c.SurrealURLv }
func (c *Config) SurrealNS() string                  { return c.SurrealNSv }
func (c *Config) SurrealDB() string                  { return c.SurrealDBv }
func (c *Config) SurrealUser() string                { return c.SurrealUserv }
func (c *Config) SurrealPass() string                { return c.SurrealPassv }
func (c *Config) PostgresURL() string                { return c.PostgresURLv }
func (c *Config) RealtimeURL() string                { return c.RealtimeURLv }
func (c *Config) LoginURL() string                   { return c.LoginURLv }
func (c *Config) StorageURL() string                 { return c.StorageURLv }
func (c *Config) TypingIdle() time.Duration          { return c.TypingIdlev }
func (c *Config) SessionCloseTimeout() time.Duration { return c.CloseTimeoutv }
