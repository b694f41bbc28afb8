// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Gateway       GatewayConfig      `mapstructure:"gateway"`
	Model         ModelConfig        `mapstructure:"model"`
	Search        SearchConfig       `mapstructure:"search"`
	Identity      IdentityConfig     `mapstructure:"identity"`
	Intake        IntakeConfig       `mapstructure:"intake"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// GatewayConfig holds the inbound endpoint settings.
type GatewayConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	RealtimePath string `mapstructure:"realtime_path"`
	StaticDir    string `mapstructure:"static_dir"`
	// CloseOnStore closes the session gracefully after a successful store.
	CloseOnStore bool `mapstructure:"close_on_store"`
}

// Addr returns the listen address for the inbound HTTP server.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// ModelConfig holds the upstream realtime model endpoint settings.
type ModelConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Deployment string `mapstructure:"deployment"`
	APIKey     string `mapstructure:"api_key"`
	APIVersion string `mapstructure:"api_version"`
}

// SearchConfig holds the knowledge-base retrieval backend settings.
type SearchConfig struct {
	Endpoint              string `mapstructure:"endpoint"`
	APIKey                string `mapstructure:"api_key"`
	Index                 string `mapstructure:"index"`
	SemanticConfiguration string `mapstructure:"semantic_configuration"`
	IdentifierField       string `mapstructure:"identifier_field"`
	ContentField          string `mapstructure:"content_field"`
	EmbeddingField        string `mapstructure:"embedding_field"`
	TitleField            string `mapstructure:"title_field"`
	UseVectorQuery        bool   `mapstructure:"use_vector_query"`
	MaxResults            int    `mapstructure:"max_results"`
	Timeout               int    `mapstructure:"timeout"` // milliseconds
}

// IdentityConfig holds the federated identity provider settings used when
// no static API key is configured for an endpoint.
type IdentityConfig struct {
	TenantID     string `mapstructure:"tenant_id"`
	TokenURL     string `mapstructure:"token_url"` // %s expands to the tenant id
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Scope        string `mapstructure:"scope"`
	TokenFile    string `mapstructure:"token_file"`
	Timeout      int    `mapstructure:"timeout"` // milliseconds, token acquisition bound
}

// IntakeConfig selects the persistence collaborators for stored records.
type IntakeConfig struct {
	PostgresEnabled bool   `mapstructure:"postgres_enabled"`
	RedisEnabled    bool   `mapstructure:"redis_enabled"`
	RedisQueueKey   string `mapstructure:"redis_queue_key"`
	FileEnabled     bool   `mapstructure:"file_enabled"`
	FileDir         string `mapstructure:"file_dir"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NotificationConfig holds settings for staff notifications on stored admissions.
type NotificationConfig struct {
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"email"`
	SMS struct {
		Enabled     bool   `mapstructure:"enabled"`
		PhoneNumber string `mapstructure:"phone_number"`
		SenderID    string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
