// Package directory provides a client for the employee profile API.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/projectdesk/notify/internal/model"
)

const requestTimeout = 10 * time.Second

// Client fetches employee profiles from the dashboard REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new directory Client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

type profileResponse struct {
	Success bool                  `json:"success"`
	Data    model.EmployeeProfile `json:"data"`
}

// GetProfile fetches the profile for the given employee id. The request is
// bounded by a 10 second timeout; a response without the success flag is
// treated as a failure.
func (c *Client) GetProfile(ctx context.Context, employeeID string) (model.EmployeeProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/employees/%s", c.baseURL, url.PathEscape(employeeID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.EmployeeProfile{}, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return model.EmployeeProfile{}, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.EmployeeProfile{}, fmt.Errorf("profile API error: %s", resp.Status)
	}

	var pr profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return model.EmployeeProfile{}, fmt.Errorf("decode profile response: %w", err)
	}

	if !pr.Success {
		return model.EmployeeProfile{}, fmt.Errorf("profile API rejected lookup for %s", employeeID)
	}

	return pr.Data, nil
}
