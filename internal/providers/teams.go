package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// TeamsClient fetches team composition profiles: per-competency skill
// saturation and the team's average personality.
type TeamsClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewTeamsClient(baseURL string, timeout time.Duration) *TeamsClient {
	return &TeamsClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *TeamsClient) Profile(ctx context.Context, teamID uuid.UUID) (model.TeamProfile, error) {
	if c.baseURL == "" {
		return model.TeamProfile{}, model.E(model.CodePreconditionFailed, "team profile provider is not configured")
	}

	endpoint := fmt.Sprintf("%s/teams/%s/profile", c.baseURL, teamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.TeamProfile{}, fmt.Errorf("teams: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.TeamProfile{}, fmt.Errorf("teams: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.TeamProfile{}, model.E(model.CodePreconditionFailed, "unknown team %s", teamID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return model.TeamProfile{}, fmt.Errorf("teams: status %d: %s", resp.StatusCode, string(body))
	}

	var profile model.TeamProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return model.TeamProfile{}, fmt.Errorf("teams: decode response: %w", err)
	}
	if profile.TeamID == uuid.Nil {
		profile.TeamID = teamID
	}
	return profile, nil
}
