package version

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// apiTimeout bounds version requests so a slow version endpoint cannot
// stall a polling tick past its interval.
const apiTimeout = 5 * time.Second

// APIChecker reads the version marker from a remote HTTP endpoint
// returning an envelope of the form {"data": 42}. Transport failures,
// non-success statuses and malformed bodies are logged and reported as
// an absent version.
type APIChecker struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// NewAPIChecker creates an API-backed version checker.
func NewAPIChecker(endpoint string, logger *slog.Logger) *APIChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIChecker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: apiTimeout},
		logger:   logger.With("component", "version.api"),
	}
}

// Current implements Checker.
func (c *APIChecker) Current(ctx context.Context) (int64, bool) {
	body, ok := c.fetch(ctx)
	if !ok {
		return 0, false
	}

	var envelope struct {
		Data *int64 `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		c.logger.Error("malformed version response",
			"endpoint", c.endpoint,
			"error", err,
		)
		return 0, false
	}
	if envelope.Data == nil {
		c.logger.Debug("version response has no data field", "endpoint", c.endpoint)
		return 0, false
	}

	return *envelope.Data, true
}

// Available implements Checker.
func (c *APIChecker) Available(ctx context.Context) bool {
	body, ok := c.fetch(ctx)
	return ok && len(body) > 0
}

// Describe implements Checker.
func (c *APIChecker) Describe() string {
	return "api version checker using: " + c.endpoint
}

func (c *APIChecker) fetch(ctx context.Context) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		c.logger.Error("failed to build version request",
			"endpoint", c.endpoint,
			"error", err,
		)
		return nil, false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("version endpoint unreachable",
			"endpoint", c.endpoint,
			"error", err,
		)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("version endpoint returned non-success status",
			"endpoint", c.endpoint,
			"status", resp.StatusCode,
		)
		return nil, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("failed to read version response",
			"endpoint", c.endpoint,
			"error", err,
		)
		return nil, false
	}
	return body, true
}
