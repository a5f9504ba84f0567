package pubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/illmade-knight/go-pubsub/pkg/auth"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ====================================================================================
// Client is the shell around the Pub/Sub REST surface: it owns the
// authenticated HTTP transport, builds the project-scoped URLs and maps
// non-2xx responses to errors. The publish and pull pipelines sit on top of
// it; they never touch the network directly.
// ====================================================================================

// Client is a Google Cloud Pub/Sub REST client. It is safe for concurrent
// use: every call owns its own request/response lifecycle and the only
// shared state, the token cache, serializes its own refreshes.
type Client struct {
	projectURL  string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	logger      zerolog.Logger
}

// New builds a Client from the service account key named in cfg. Credential
// problems (missing file, malformed JSON, malformed private key) surface
// here, not on the first call.
func New(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Client, error) {
	creds, err := auth.NewCredentialsFromFile(ctx, cfg.CredentialsFile, cfg.TokenRefreshBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pubsub client: %w", err)
	}
	if cfg.ProjectID == "" {
		resolved := *cfg
		resolved.ProjectID = creds.ProjectID
		cfg = &resolved
	}
	return NewWithTokenSource(cfg, creds.TokenSource, logger)
}

// NewWithTokenSource builds a Client around an existing token source. Pass a
// nil token source to talk to an emulator, which accepts unauthenticated
// requests.
func NewWithTokenSource(cfg *Config, tokenSource oauth2.TokenSource, logger zerolog.Logger) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub client requires a project ID")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		projectURL:  fmt.Sprintf("%s/v1/projects/%s", strings.TrimSuffix(baseURL, "/"), cfg.ProjectID),
		httpClient:  &http.Client{},
		tokenSource: tokenSource,
		logger:      logger.With().Str("component", "PubSubClient").Str("project_id", cfg.ProjectID).Logger(),
	}, nil
}

// post sends one authenticated JSON request and decodes the response into
// out (skipped when out is nil, for empty-body responses like acknowledge).
// Timeouts and cancellation ride on ctx.
func (c *Client) post(ctx context.Context, url string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.tokenSource != nil {
		token, err := c.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("failed to fetch authentication token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP communication with Pub/Sub service failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// The service answers errors in the googleapi shape
	// {"error": {"code": ..., "message": ...}}.
	if err := googleapi.CheckResponse(resp); err != nil {
		return fmt.Errorf("unexpected response from Pub/Sub service: %w", err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Pub/Sub response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) topicURL(topicID string) string {
	return fmt.Sprintf("%s/topics/%s:publish", c.projectURL, topicID)
}

func (c *Client) subscriptionURL(subscriptionID, action string) string {
	return fmt.Sprintf("%s/subscriptions/%s:%s", c.projectURL, subscriptionID, action)
}
