package pubsub

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// DefaultBaseURL is the production Pub/Sub REST endpoint.
const DefaultBaseURL = "https://pubsub.googleapis.com"

// Config holds everything needed to construct a Client. The base URL is an
// explicit field rather than a process-global override so that two clients
// in one process can point at different endpoints (e.g. one at production,
// one at a local emulator).
type Config struct {
	// ProjectID scopes every topic and subscription URL. When empty it is
	// derived from the service account key during New.
	ProjectID string `envconfig:"PUBSUB_PROJECT_ID"`

	// CredentialsFile is the path to a service account JSON key.
	CredentialsFile string `envconfig:"PUBSUB_CREDENTIALS_FILE"`

	// BaseURL overrides the production endpoint. Leave empty for production.
	BaseURL string `envconfig:"PUBSUB_BASE_URL"`

	// TokenRefreshBuffer is how long before expiry a cached OAuth token is
	// refreshed.
	TokenRefreshBuffer time.Duration `envconfig:"PUBSUB_TOKEN_REFRESH_BUFFER" default:"30s"`
}

// LoadDefaultConfig provides a config with sensible defaults for production.
func LoadDefaultConfig(projectID, credentialsFile string) *Config {
	return &Config{
		ProjectID:          projectID,
		CredentialsFile:    credentialsFile,
		BaseURL:            DefaultBaseURL,
		TokenRefreshBuffer: 30 * time.Second,
	}
}

// LoadConfigFromEnv populates a Config from PUBSUB_* environment variables.
// This is an opt-in helper; nothing else in the package reads the
// environment.
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process pubsub config from environment: %w", err)
	}
	return cfg, nil
}
