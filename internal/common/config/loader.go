// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the yaml base config, overlays environment
// variables, expands ${VAR} placeholders and validates the result. Local
// .env loading is suppressed when RUNNING_IN_PRODUCTION is set.
func Load() (*Config, error) {
	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		loadEnvFile()
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like MODEL_ENDPOINT, SEARCH_USE_VECTOR_QUERY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		loadEnvFile()
	}

	v := viper.GetViper()
	setDefaults()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(v)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// setDefaults registers defaults so an explicit false/empty in config or
// environment is still respected (notably search.use_vector_query).
func setDefaults() {
	viper.SetDefault("app.name", "admit-care")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("gateway.host", "localhost")
	viper.SetDefault("gateway.port", 8765)
	viper.SetDefault("gateway.realtime_path", "/realtime")
	viper.SetDefault("gateway.static_dir", "static")
	viper.SetDefault("gateway.close_on_store", false)

	viper.SetDefault("model.api_version", "2024-10-01-preview")

	viper.SetDefault("search.semantic_configuration", "default")
	viper.SetDefault("search.identifier_field", "chunk_id")
	viper.SetDefault("search.content_field", "chunk")
	viper.SetDefault("search.embedding_field", "text_vector")
	viper.SetDefault("search.title_field", "title")
	viper.SetDefault("search.use_vector_query", true)
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", 10000)

	viper.SetDefault("identity.timeout", 60000)
	viper.SetDefault("identity.scope", "openid")

	viper.SetDefault("intake.file_enabled", true)
	viper.SetDefault("intake.file_dir", "admissions")
	viper.SetDefault("intake.redis_queue_key", "intake:admissions")

	viper.SetDefault("database.postgres.port", 5432)
	viper.SetDefault("database.postgres.max_connections", 25)
	viper.SetDefault("database.postgres.max_idle", 5)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig applies direct environment overrides for values that
// are still empty after expansion.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Model.Endpoint == "" {
		cfg.Model.Endpoint = os.Getenv("MODEL_ENDPOINT")
	}
	if cfg.Model.Deployment == "" {
		cfg.Model.Deployment = os.Getenv("MODEL_DEPLOYMENT")
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("MODEL_API_KEY")
	}

	if cfg.Search.Endpoint == "" {
		cfg.Search.Endpoint = os.Getenv("SEARCH_ENDPOINT")
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = os.Getenv("SEARCH_API_KEY")
	}
	if cfg.Search.Index == "" {
		cfg.Search.Index = os.Getenv("SEARCH_INDEX")
	}

	if cfg.Identity.TenantID == "" {
		cfg.Identity.TenantID = os.Getenv("TENANT_ID")
	}
	if cfg.Identity.ClientSecret == "" {
		cfg.Identity.ClientSecret = os.Getenv("IDENTITY_CLIENT_SECRET")
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// validateConfig validates the fields without which no session can proceed.
// Failures here are fatal at startup: the process must not accept connections.
func validateConfig(cfg *Config) error {
	if cfg.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if cfg.Model.Deployment == "" {
		return fmt.Errorf("model.deployment is required")
	}

	if cfg.Search.Endpoint == "" {
		return fmt.Errorf("search.endpoint is required")
	}
	if cfg.Search.Index == "" {
		return fmt.Errorf("search.index is required")
	}

	if cfg.Intake.PostgresEnabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required when intake.postgres_enabled")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required when intake.postgres_enabled")
		}
	}
	if cfg.Intake.RedisEnabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when intake.redis_enabled")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
