package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bmr-suspension/storefront-backend/services/checkout-service/models"
)

// ServiceTokenHeader must match the header the create-order route checks.
const ServiceTokenHeader = "X-Service-Token"

// OrderHTTPClient calls the create-order endpoint of a remote order service.
type OrderHTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewOrderHTTPClient creates a client for the service at baseURL. token is
// sent as the shared service credential.
func NewOrderHTTPClient(baseURL, token string, timeout time.Duration) *OrderHTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OrderHTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SubmitOrder posts req to /api/orders.
func (c *OrderHTTPClient) SubmitOrder(ctx context.Context, req *models.CreateOrderRequest) (*CreatedOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(ServiceTokenHeader, c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("order service request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read order service response: %w", err)
	}

	var out models.CreateOrderResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("order service returned status %d with unreadable body", resp.StatusCode)
	}
	if resp.StatusCode >= 300 || !out.Success {
		msg := out.Error
		if msg == "" {
			msg = out.Message
		}
		return nil, fmt.Errorf("order service returned status %d: %s", resp.StatusCode, msg)
	}
	if out.OrderNumber == "" {
		return nil, fmt.Errorf("order service response is missing the order number")
	}
	return &CreatedOrder{OrderID: out.OrderID, OrderNumber: out.OrderNumber}, nil
}
