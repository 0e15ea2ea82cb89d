// Package events provides a client for the calendar events API.
//
// The API is loose about field names and response envelopes, so every raw
// event passes through a single normalization step before anything else in
// the service sees it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/projectdesk/notify/internal/model"
)

const requestTimeout = 10 * time.Second

// Client fetches calendar events from the dashboard REST API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new events Client for the given API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// GetEvents fetches the full calendar event list. The request is bounded by
// a 10 second timeout. A response that is neither a bare array nor a
// {data: [...]} / {events: [...]} envelope yields an empty list, not an error.
func (c *Client) GetEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/calendar", nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar API error: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read events response: %w", err)
	}

	raws := decodeEvents(body)

	events := make([]model.CalendarEvent, 0, len(raws))
	for _, raw := range raws {
		events = append(events, Normalize(raw))
	}

	return events, nil
}

// decodeEvents unwraps the three response envelopes the API is known to use.
func decodeEvents(body []byte) []map[string]interface{} {
	var arr []map[string]interface{}
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr
	}

	var wrapped struct {
		Data   []map[string]interface{} `json:"data"`
		Events []map[string]interface{} `json:"events"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		if wrapped.Data != nil {
			return wrapped.Data
		}
		if wrapped.Events != nil {
			return wrapped.Events
		}
	}

	return nil
}
