/**
 * @description
 * Client for the point-chart pricing service. The engine calls it to price a
 * stay in points and cents when a booking arrives without a computed total.
 */
package pointchart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Quote is the priced stay returned by the point-chart service.
type Quote struct {
	ResortCode      string `json:"resort_code"`
	RoomType        string `json:"room_type"`
	TotalPoints     int    `json:"total_points"`
	GuestTotalCents int64  `json:"guest_total_cents"`
}

// Client provides methods to interact with the point-chart service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new point-chart service client.
func NewClient(baseURL, apiKey string) *Client {
	normalizedURL := strings.TrimSuffix(baseURL, "/")
	return &Client{
		baseURL:    normalizedURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// GetQuote prices a stay at one resort and room type for a date range.
func (c *Client) GetQuote(ctx context.Context, resortCode, roomType string, checkIn, checkOut time.Time) (*Quote, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("point chart service base URL is not configured")
	}

	url := fmt.Sprintf("%s/internal/point-charts/quote?resort=%s&room=%s&check_in=%s&check_out=%s",
		c.baseURL, resortCode, roomType,
		checkIn.Format("2006-01-02"), checkOut.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("point chart service returned status %d", resp.StatusCode)
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	return &quote, nil
}
