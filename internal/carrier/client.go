package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a carrier's JSON HTTP API for labels and tracking.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a carrier client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type labelResponse struct {
	Success           bool      `json:"success"`
	TrackingNumber    string    `json:"tracking_number"`
	LabelURL          string    `json:"label_url"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	ErrorCode         string    `json:"error_code"`
	ErrorMessage      string    `json:"error_message"`
}

// CreateLabel requests a shipping label from the carrier.
func (c *Client) CreateLabel(ctx context.Context, req LabelRequest) (Label, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Label{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/labels", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return Label{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Label{}, fmt.Errorf("carrier: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return Label{}, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var body labelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Label{}, fmt.Errorf("carrier: decode response: %w", err)
	}

	if !body.Success {
		return Label{}, &Error{Code: body.ErrorCode, Message: body.ErrorMessage}
	}

	return Label{
		TrackingNumber:    body.TrackingNumber,
		LabelURL:          body.LabelURL,
		EstimatedDelivery: body.EstimatedDelivery,
	}, nil
}

type trackingResponse struct {
	Success      bool            `json:"success"`
	Status       string          `json:"status"`
	Events       []TrackingEvent `json:"events"`
	ErrorCode    string          `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
}

// Track fetches the current tracking state for a shipment.
func (c *Client) Track(ctx context.Context, trackingNumber string) (TrackingInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/tracking/%s", c.baseURL, url.PathEscape(trackingNumber))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TrackingInfo{}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return TrackingInfo{}, fmt.Errorf("carrier: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return TrackingInfo{}, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var body trackingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TrackingInfo{}, fmt.Errorf("carrier: decode response: %w", err)
	}

	if !body.Success {
		return TrackingInfo{}, &Error{Code: body.ErrorCode, Message: body.ErrorMessage}
	}

	return TrackingInfo{Status: body.Status, Events: body.Events}, nil
}
