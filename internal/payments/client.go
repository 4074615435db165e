package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to a payment gateway over its JSON HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a gateway client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chargeResponse struct {
	Success              bool           `json:"success"`
	GatewayTransactionID string         `json:"gateway_transaction_id"`
	Fees                 float64        `json:"fees"`
	ErrorCode            string         `json:"error_code"`
	ErrorMessage         string         `json:"error_message"`
	Response             map[string]any `json:"response"`
}

// Charge submits the charge and returns the gateway confirmation. A decline
// is returned as *GatewayError; transport failures are returned as-is.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ChargeResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/v1/charges", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return ChargeResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, fmt.Errorf("payment gateway: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return ChargeResult{}, fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
	}

	var body chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ChargeResult{}, fmt.Errorf("payment gateway: decode response: %w", err)
	}

	if !body.Success {
		return ChargeResult{}, &GatewayError{
			Code:     body.ErrorCode,
			Message:  body.ErrorMessage,
			Response: body.Response,
		}
	}

	return ChargeResult{
		GatewayTransactionID: body.GatewayTransactionID,
		Fees:                 body.Fees,
		Response:             body.Response,
	}, nil
}
