package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Nexus Repository Manager
	NexusURL      string
	NexusUsername string
	NexusPassword string

	// IQ Server
	IQServerURL      string
	IQServerUsername string
	IQServerPassword string

	// Provisioning
	APIToken           string
	ExtraRoles         []string
	SharedRole         string
	OwnerRoleName      string
	OrganizationsFile  string
	PackageManagerFile string
	MaxBatchSize       int

	// Transport
	HTTPRetryMax   int
	HTTPTimeout    time.Duration
	RemoteMinDelay time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables. envFiles are
// read first if they exist; with none given, .env in the working directory
// is tried.
func Load(envFiles ...string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load(envFiles...)

	maxBatch, err := getEnvInt("MAX_BATCH_SIZE", 50)
	if err != nil {
		return nil, err
	}
	retryMax, err := getEnvInt("HTTP_RETRY_MAX", 3)
	if err != nil {
		return nil, err
	}
	timeout, err := getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	minDelay, err := getEnvDuration("REMOTE_MIN_DELAY", 0)
	if err != nil {
		return nil, err
	}

	return &Config{
		NexusURL:           getEnv("NEXUS_URL", ""),
		NexusUsername:      getEnv("NEXUS_USERNAME", ""),
		NexusPassword:      getEnv("NEXUS_PASSWORD", ""),
		IQServerURL:        getEnv("IQSERVER_URL", ""),
		IQServerUsername:   getEnv("IQSERVER_USERNAME", ""),
		IQServerPassword:   getEnv("IQSERVER_PASSWORD", ""),
		APIToken:           getEnv("API_TOKEN", ""),
		ExtraRoles:         parseCSV(getEnv("EXTRA_ROLE", "")),
		SharedRole:         getEnv("SHARED_ROLE", "repositories.share"),
		OwnerRoleName:      getEnv("OWNER_ROLE_NAME", "Owner"),
		OrganizationsFile:  getEnv("ORGANIZATIONS_FILE", "config/organizations.json"),
		PackageManagerFile: getEnv("PACKAGE_MANAGER_FILE", "config/package_manager.json"),
		MaxBatchSize:       maxBatch,
		HTTPRetryMax:       retryMax,
		HTTPTimeout:        timeout,
		RemoteMinDelay:     minDelay,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", ""),
		StorageType:        getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:         getEnv("SQLITE_PATH", "./provisioner.db"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		APIPort:            getEnv("API_PORT", "5000"),
		APIHost:            getEnv("API_HOST", "127.0.0.1"),
		APIEndpoint:        getEnv("API_ENDPOINT", "http://127.0.0.1:5000"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be an integer"}
	}
	return n, nil
}

// getEnvDuration accepts Go durations ("500ms") or plain seconds ("30")
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ConfigError{Field: key, Message: "must be a duration such as 30s or 500ms"}
	}
	return d, nil
}

func parseCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates everything needed to reach the remote systems and
// serve or run batches.
func (c *Config) Validate() error {
	required := []struct{ field, value string }{
		{"NEXUS_URL", c.NexusURL},
		{"NEXUS_USERNAME", c.NexusUsername},
		{"NEXUS_PASSWORD", c.NexusPassword},
		{"IQSERVER_URL", c.IQServerURL},
		{"IQSERVER_USERNAME", c.IQServerUsername},
		{"IQSERVER_PASSWORD", c.IQServerPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Message: "is required"}
		}
	}
	if c.MaxBatchSize <= 0 {
		return &ConfigError{Field: "MAX_BATCH_SIZE", Message: "must be positive"}
	}
	if c.HTTPRetryMax < 0 {
		return &ConfigError{Field: "HTTP_RETRY_MAX", Message: "must not be negative"}
	}
	return c.ValidateStorage()
}

// ValidateStorage validates the batch history settings only
func (c *Config) ValidateStorage() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ValidateServer additionally requires the API token
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIToken == "" {
		return &ConfigError{Field: "API_TOKEN", Message: "is required to serve the API"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
