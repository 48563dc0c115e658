// Package config loads the single explicit Config every component is constructed from.
//
// Sources are layered: built-in defaults, then an optional YAML file, then environment
// variables (a .env file in the working directory is loaded into the environment first).
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the config file location.
const PathEnvVar = "CONFIG_PATH"

var DefaultPaths = []string{
	"bookscape.yaml",
	"bookscape.yml",
	"/etc/bookscape/config.yaml",
}

const (
	ConflictRefreshIdentity = "identity"
	ConflictRefreshAll      = "all"
)

type Config struct {
	Database    Database    `koanf:"database"`
	GoogleBooks GoogleBooks `koanf:"google_books"`
	Store       Store       `koanf:"store"`
	Server      Server      `koanf:"server"`
	Logging     Logging     `koanf:"logging"`
}

type Database struct {
	// URL wins over the individual connection parts when set
	URL      string `koanf:"url"`
	Host     string `koanf:"host" validate:"required_without=URL"`
	Port     int    `koanf:"port" validate:"min=1,max=65535"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name" validate:"required_without=URL"`
	SSLMode  string `koanf:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `koanf:"max_conns" validate:"min=1"`
}

type GoogleBooks struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

type Store struct {
	ConflictPolicy string `koanf:"conflict_policy" validate:"oneof=identity all"`
}

type Server struct {
	BindAddr           string `koanf:"bind_addr" validate:"required"`
	DebugMode          bool   `koanf:"debug_mode"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute" validate:"min=0"`
}

type Logging struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

func Default() *Config {
	return &Config{
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "admin",
			Name:     "bookscape",
			SSLMode:  "disable",
			MaxConns: 4,
		},
		GoogleBooks: GoogleBooks{
			BaseURL: "https://www.googleapis.com/books/v1",
			Timeout: 10 * time.Second,
		},
		Store: Store{
			ConflictPolicy: ConflictRefreshIdentity,
		},
		Server: Server{
			BindAddr:           ":8080",
			RateLimitPerMinute: 60,
		},
		Logging: Logging{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Load reads defaults, the config file (if any) and the environment, in that order.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	path, err := findFile()
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	cfg.Store.ConflictPolicy = strings.ToLower(cfg.Store.ConflictPolicy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// ConnString returns the libpq style connection URL for pgx.
func (d Database) ConnString() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}

	return u.String()
}

var envKeys = map[string]string{
	"DATABASE_URL":          "database.url",
	"DB_HOST":               "database.host",
	"DB_PORT":               "database.port",
	"DB_USER":               "database.user",
	"DB_PASSWORD":           "database.password",
	"DB_NAME":               "database.name",
	"DB_SSLMODE":            "database.sslmode",
	"DB_MAX_CONNS":          "database.max_conns",
	"GOOGLE_BOOKS_API_KEY":  "google_books.api_key",
	"GOOGLE_BOOKS_BASE_URL": "google_books.base_url",
	"GOOGLE_BOOKS_TIMEOUT":  "google_books.timeout",
	"STORE_CONFLICT_POLICY": "store.conflict_policy",
	"BIND_ADDR":             "server.bind_addr",
	"DEBUG_MODE":            "server.debug_mode",
	"RATE_LIMIT_PER_MINUTE": "server.rate_limit_per_minute",
	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
}

// envKey maps known variables to config paths; everything else in the environment is ignored.
func envKey(key string) string {
	return envKeys[key]
}

// findFile returns the explicit CONFIG_PATH, which must exist, or the first default path
// present. No file at all is not an error.
func findFile() (string, error) {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("config file %s: %w", p, err)
		}
		return p, nil
	}

	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}
