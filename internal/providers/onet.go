// Package providers holds the HTTP clients for the external profile
// services: occupation benchmarks and team composition. Both are thin
// JSON clients; retry policy lives with the callers.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/metriq-ai/metriq/internal/model"
)

// ONetClient fetches occupation benchmark profiles.
type ONetClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewONetClient(baseURL string, timeout time.Duration) *ONetClient {
	return &ONetClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Profile returns the benchmark for one occupation code. An unknown code
// is a precondition failure, not a transient outage.
func (c *ONetClient) Profile(ctx context.Context, occupationCode string) (model.ONetProfile, error) {
	if c.baseURL == "" {
		return model.ONetProfile{}, model.E(model.CodePreconditionFailed, "occupation benchmark provider is not configured")
	}

	endpoint := fmt.Sprintf("%s/occupations/%s/profile", c.baseURL, url.PathEscape(occupationCode))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ONetProfile{}, fmt.Errorf("onet: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.ONetProfile{}, fmt.Errorf("onet: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.ONetProfile{}, model.E(model.CodePreconditionFailed, "unknown occupation code %q", occupationCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.ONetProfile{}, fmt.Errorf("onet: status %d: %s", resp.StatusCode, string(body))
	}

	var profile model.ONetProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return model.ONetProfile{}, fmt.Errorf("onet: decode response: %w", err)
	}
	if profile.OccupationCode == "" {
		profile.OccupationCode = occupationCode
	}
	return profile, nil
}
