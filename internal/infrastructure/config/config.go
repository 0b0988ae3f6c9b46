package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mizutama/torii/internal/entities"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Engine   EngineConfig
	Metrics  MetricsConfig
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// CacheConfig represents decision cache configuration
type CacheConfig struct {
	Enabled        bool
	MaxMemoryBytes int64 // Maximum memory usage in bytes (e.g., 104857600 = 100MB)
	Metrics        bool
	TTLMinutes     int // Time-to-live for cached decisions in minutes
}

// EngineConfig represents decision engine configuration
type EngineConfig struct {
	MaxDepth         int // Maximum ancestry depth walked per chain
	BatchParallelism int // Maximum concurrent evaluations in a batch check

	// PermissionNames overrides entries of the action -> coarse permission
	// name table, keyed by action string
	PermissionNames map[string]string
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Port int // Port for the Prometheus metrics HTTP server
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Find project root
	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	// Set config file name based on environment
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot) // Project root

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "torii")
	viper.SetDefault("DB_NAME", "torii_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_MEMORY_BYTES", 100*1024*1024) // 100MB
	viper.SetDefault("CACHE_METRICS", true)
	viper.SetDefault("CACHE_TTL_MINUTES", 5) // 5 minutes TTL

	// Engine defaults
	viper.SetDefault("ENGINE_MAX_DEPTH", 100)
	viper.SetDefault("ENGINE_BATCH_PARALLELISM", 8)

	// Metrics defaults
	viper.SetDefault("METRICS_PORT", 9090)

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	// DB_PASSWORD is required for security
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: dbPassword,
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Cache: CacheConfig{
			Enabled:        viper.GetBool("CACHE_ENABLED"),
			MaxMemoryBytes: viper.GetInt64("CACHE_MAX_MEMORY_BYTES"),
			Metrics:        viper.GetBool("CACHE_METRICS"),
			TTLMinutes:     viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Engine: EngineConfig{
			MaxDepth:         viper.GetInt("ENGINE_MAX_DEPTH"),
			BatchParallelism: viper.GetInt("ENGINE_BATCH_PARALLELISM"),
			PermissionNames:  loadPermissionNameOverrides(),
		},
		Metrics: MetricsConfig{
			Port: viper.GetInt("METRICS_PORT"),
		},
	}

	return config, nil
}

// loadPermissionNameOverrides collects PERM_NAME_<ACTION> overrides for the
// action -> coarse permission name table
func loadPermissionNameOverrides() map[string]string {
	overrides := make(map[string]string)
	for _, action := range entities.Actions {
		key := "PERM_NAME_" + strings.ToUpper(string(action))
		if name := viper.GetString(key); name != "" {
			overrides[string(action)] = name
		}
	}
	return overrides
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
