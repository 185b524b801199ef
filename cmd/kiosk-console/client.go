package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"kiosk-gateway/entities"
)

// client talks to the gateway's local HTTP API.
type client struct {
	baseURL string
	http    *http.Client
}

func newClient(baseURL string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway not reachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// Health answers 503 with a valid snapshot when a component is down.
	if resp.StatusCode >= 300 && !(resp.StatusCode == http.StatusServiceUnavailable && out != nil && len(data) > 0) {
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *client) status() (entities.DeviceStatus, error) {
	var s entities.DeviceStatus
	err := c.do(http.MethodGet, "/status", nil, &s)
	return s, err
}

func (c *client) health() (entities.HealthSnapshot, error) {
	var h entities.HealthSnapshot
	err := c.do(http.MethodGet, "/diagnostics/health", nil, &h)
	return h, err
}

func (c *client) recentEvents(n int) ([]entities.DeviceEvent, error) {
	var resp struct {
		Data []entities.DeviceEvent `json:"data"`
	}
	err := c.do(http.MethodGet, fmt.Sprintf("/diagnostics/recent-events?count=%d", n), nil, &resp)
	return resp.Data, err
}

func (c *client) reset() error {
	return c.do(http.MethodPost, "/reset", nil, nil)
}

func (c *client) startMaintenance(reason string) error {
	return c.do(http.MethodPost, "/maintenance/start", map[string]string{"reason": reason}, nil)
}

func (c *client) stopMaintenance() error {
	return c.do(http.MethodPost, "/maintenance/stop", nil, nil)
}
