// Package geocode resolves coordinates to human-readable place names
// through a Nominatim-compatible reverse-geocoding endpoint. Resolution is
// strictly best-effort: failures degrade to a placeholder string and never
// block attendance marking.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"
)

// PlaceholderName is returned whenever the lookup fails or yields nothing.
const PlaceholderName = "Location name unavailable"

// Client talks to a Nominatim-compatible reverse endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a reverse-geocoding client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org/reverse"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Suburb  string `json:"suburb"`
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
	} `json:"address"`
}

// ReverseLookup resolves coordinates to a display name. It never returns an
// error to the caller; any failure is logged and collapsed into the
// placeholder.
func (c *Client) ReverseLookup(ctx context.Context, latitude, longitude float64) string {
	name, err := c.reverse(ctx, latitude, longitude)
	if err != nil {
		log.Printf("Reverse geocoding failed for (%f, %f): %v", latitude, longitude, err)
		return PlaceholderName
	}
	if name == "" {
		return PlaceholderName
	}
	return name
}

func (c *Client) reverse(ctx context.Context, latitude, longitude float64) (string, error) {
	query := url.Values{}
	query.Set("format", "json")
	query.Set("lat", fmt.Sprintf("%f", latitude))
	query.Set("lon", fmt.Sprintf("%f", longitude))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	// Nominatim's usage policy requires an identifying agent.
	req.Header.Set("User-Agent", "veriface-attendance/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocoding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocoding returned status %d", resp.StatusCode)
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding reverse geocoding response: %w", err)
	}

	return parsed.DisplayName, nil
}
