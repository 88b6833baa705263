package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"polaris-auth/polaris/pkg/engine"
)

// apiTimeout bounds both connection setup and the full request, so a
// slow policy service cannot stall the synchronous initialization path.
const apiTimeout = 5 * time.Second

// APILoader loads rules from a remote HTTP endpoint. The endpoint is
// expected to return an envelope of the form
//
//	{"data": [{"id":1,"roleId":2,"resourceCode":"users","actionCode":"read"}, ...]}
//
// Rows missing required fields are dropped individually rather than
// failing the whole load. A non-empty resource filter is passed to the
// endpoint as a comma-separated resourceCode query parameter and also
// applied client-side, so a server that ignores the parameter still
// yields a correctly filtered set.
type APILoader struct {
	endpoint string
	filter   Filter
	client   *http.Client
	logger   *slog.Logger
}

// NewAPILoader creates an API-backed loader.
func NewAPILoader(endpoint string, filter Filter, logger *slog.Logger) *APILoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &APILoader{
		endpoint: endpoint,
		filter:   filter,
		client: &http.Client{
			Timeout: apiTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
			},
		},
		logger: logger.With("component", "policy.api"),
	}
}

// Load implements Loader.
func (l *APILoader) Load(ctx context.Context, eng engine.Engine) error {
	start := time.Now()
	requestURL := l.buildURL()
	l.logger.Debug("loading policies from api", "url", requestURL)

	body, err := l.fetch(ctx, requestURL)
	if err != nil {
		return err
	}

	rules, err := l.parseEnvelope(body)
	if err != nil {
		return err
	}

	rules = l.filter.Apply(rules)
	return installRules(eng, rules, "api", start, l.logger)
}

// Describe implements Loader.
func (l *APILoader) Describe() string {
	return "api policy loader using: " + l.endpoint
}

func (l *APILoader) buildURL() string {
	if l.filter.Empty() {
		return l.endpoint
	}

	separator := "?"
	if strings.Contains(l.endpoint, "?") {
		separator = "&"
	}
	return l.endpoint + separator + "resourceCode=" + url.QueryEscape(strings.Join(l.filter, ","))
}

func (l *APILoader) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, &SourceUnavailableError{Source: requestURL, Op: "request", Cause: err}
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, &SourceUnavailableError{Source: requestURL, Op: "fetch", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SourceUnavailableError{
			Source: requestURL,
			Op:     "fetch",
			Cause:  fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &SourceUnavailableError{Source: requestURL, Op: "read body", Cause: err}
	}
	return body, nil
}

// apiRule mirrors the wire shape of one rule row. Pointer fields
// distinguish absent from zero so incomplete rows can be dropped.
type apiRule struct {
	ID       int64   `json:"id"`
	RoleID   *int64  `json:"roleId"`
	Resource *string `json:"resourceCode"`
	Action   *string `json:"actionCode"`
}

func (l *APILoader) parseEnvelope(body []byte) ([]Rule, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		l.logger.Warn("empty response from policy api", "endpoint", l.endpoint)
		return nil, nil
	}

	var envelope struct {
		Data []apiRule `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &MalformedDataError{Source: l.endpoint, Message: "invalid JSON envelope", Cause: err}
	}

	if envelope.Data == nil {
		l.logger.Warn("policy api response has no data field", "endpoint", l.endpoint)
		return nil, nil
	}

	rules := make([]Rule, 0, len(envelope.Data))
	for _, row := range envelope.Data {
		if row.RoleID == nil || row.Resource == nil || *row.Resource == "" ||
			row.Action == nil || *row.Action == "" {
			l.logger.Warn("dropping incomplete policy row",
				"endpoint", l.endpoint,
				"id", row.ID,
			)
			continue
		}
		rules = append(rules, Rule{
			ID:       row.ID,
			RoleID:   *row.RoleID,
			Resource: *row.Resource,
			Action:   *row.Action,
		})
	}

	return rules, nil
}
