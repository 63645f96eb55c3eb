package authsdk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// GetLiveness checks if the service process is up.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/livez")
}

// GetReadiness checks the service's dependencies. A degraded service returns
// the per-dependency report together with ErrTemporarilyUnavailable.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.health(ctx, "/readyz")
}

func (c *SDKClient) health(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusServiceUnavailable {
		var health HealthResponse
		if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
			return nil, err
		}
		return &health, nil
	}

	defer resp.Body.Close()
	var health HealthResponse
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, ErrTemporarilyUnavailable
	}
	return &health, ErrTemporarilyUnavailable.WithDescription("service degraded: " + health.Status)
}
