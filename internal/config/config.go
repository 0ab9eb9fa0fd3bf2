// Package config reads hwportal settings from the environment. A .env file in
// the working directory, when present, fills in variables that are not
// already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultDBPath       = "./hwportal.db"
	DefaultPort         = "8003"
	DefaultInventoryURL = "http://localhost:8003/shecodes/inventory"
	DefaultTimeout      = 10 * time.Second
)

// Server is the configuration of the inventory service.
type Server struct {
	Token        string
	DBPath       string
	Port         string
	SeedPath     string
	AllowOrigins []string
}

// Client is the configuration of the hwportal CLI. Flags override it.
type Client struct {
	InventoryURL string
	UserID       string
	Timeout      time.Duration
}

// LoadEnvFile loads the given dotenv files, or ".env" when none are named.
// Files that do not exist are skipped. Variables already present in the
// environment are never overwritten.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var found []string
	for _, p := range paths {
		_, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("env file %s: %w", p, err)
		}
		found = append(found, p)
	}
	if len(found) == 0 {
		return nil
	}
	if err := godotenv.Load(found...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadServer reads the service configuration. API_TOKEN is required.
func LoadServer() (Server, error) {
	c := Server{
		Token:        os.Getenv("API_TOKEN"),
		DBPath:       getenv("DB_PATH", DefaultDBPath),
		Port:         getenv("PORT", DefaultPort),
		SeedPath:     os.Getenv("SEED_PATH"),
		AllowOrigins: splitList(getenv("CORS_ALLOW_ORIGINS", "*")),
	}
	if c.Token == "" {
		return Server{}, errors.New("API_TOKEN environment variable is required")
	}
	return c, nil
}

// LoadClient reads the CLI configuration.
func LoadClient() (Client, error) {
	c := Client{
		InventoryURL: getenv("INVENTORY_URL", DefaultInventoryURL),
		UserID:       os.Getenv("HWPORTAL_USER"),
		Timeout:      DefaultTimeout,
	}
	if v := os.Getenv("HWPORTAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Client{}, fmt.Errorf("HWPORTAL_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Client{}, fmt.Errorf("HWPORTAL_TIMEOUT must be positive, got %s", d)
		}
		c.Timeout = d
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
