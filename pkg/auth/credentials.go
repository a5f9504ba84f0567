// Package auth loads Google service account keys and turns them into
// cached, refresh-ahead OAuth token sources for the Pub/Sub client.
package auth

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope is the OAuth scope covering every Pub/Sub operation.
const Scope = "https://www.googleapis.com/auth/pubsub"

// Credentials couples the project a service account key belongs to with a
// token source authenticating as that account.
type Credentials struct {
	ProjectID   string
	TokenSource oauth2.TokenSource
}

// NewCredentials parses a service account JSON key and returns credentials
// whose token source caches the current token, refreshes it refreshBuffer
// ahead of expiry, and serializes concurrent refreshes so parallel calls
// share one token fetch.
//
// The private key is validated here so a malformed key fails construction
// rather than the first call.
func NewCredentials(ctx context.Context, jsonKey []byte, refreshBuffer time.Duration) (*Credentials, error) {
	cfg, err := google.JWTConfigFromJSON(jsonKey, Scope)
	if err != nil {
		return nil, fmt.Errorf("malformed service account key: %w", err)
	}
	if err := validatePrivateKey(cfg.PrivateKey); err != nil {
		return nil, fmt.Errorf("malformed private key in service account key: %w", err)
	}

	var key struct {
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(jsonKey, &key); err != nil {
		return nil, fmt.Errorf("malformed service account key: %w", err)
	}

	return &Credentials{
		ProjectID:   key.ProjectID,
		TokenSource: oauth2.ReuseTokenSourceWithExpiry(nil, cfg.TokenSource(ctx), refreshBuffer),
	}, nil
}

// NewCredentialsFromFile reads a service account key file and calls
// NewCredentials.
func NewCredentialsFromFile(ctx context.Context, path string, refreshBuffer time.Duration) (*Credentials, error) {
	jsonKey, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("missing or unreadable service account key at %s: %w", path, err)
	}
	credentials, err := NewCredentials(ctx, jsonKey, refreshBuffer)
	if err != nil {
		return nil, fmt.Errorf("service account key at %s: %w", path, err)
	}
	return credentials, nil
}

// validatePrivateKey accepts the PEM encodings Google issues keys in,
// PKCS#8 and PKCS#1.
func validatePrivateKey(pemKey []byte) error {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return fmt.Errorf("no PEM block found")
	}
	if _, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return nil
	}
	if _, err := x509.ParsePKCS1PrivateKey(block.Bytes); err != nil {
		return fmt.Errorf("parsing private key failed: %w", err)
	}
	return nil
}
