package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	SandboxBaseURL = "https://api-m.sandbox.paypal.com"
	LiveBaseURL    = "https://api-m.paypal.com"
)

// Config is the gateway configuration resolved at startup.
type Config struct {
	ClientID     string
	ClientSecret string
	// Mode is "live" or anything else for sandbox.
	Mode string
	// BaseURL overrides the URL derived from Mode.
	BaseURL string
	Timeout time.Duration
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if strings.EqualFold(c.Mode, "live") {
		return LiveBaseURL
	}
	return SandboxBaseURL
}

// Client talks to the PayPal Orders v2 API. It persists nothing.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient never fails: missing credentials surface as ConfigurationError
// from the first call that needs them.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		baseURL:    cfg.baseURL(),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ObtainAccessToken exchanges the client credentials for a bearer token.
// Tokens are cached until shortly before they expire.
func (c *Client) ObtainAccessToken(ctx context.Context) (string, error) {
	var missing []string
	if c.cfg.ClientID == "" {
		missing = append(missing, "PAYPAL_CLIENT_ID")
	}
	if c.cfg.ClientSecret == "" {
		missing = append(missing, "PAYPAL_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return "", &ConfigurationError{Missing: missing}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", &GatewayAuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", &GatewayAuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.accessToken = tok.AccessToken
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > time.Minute {
		ttl -= time.Minute
	}
	c.expiresAt = time.Now().Add(ttl)
	return c.accessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// CaptureOrder captures an approved gateway order. Any non-2xx answer is a
// *CaptureError carrying the status and raw body.
func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(orderID))
	raw, err := c.do(ctx, http.MethodPost, path, []byte("{}"), "capture-"+orderID)
	if err != nil {
		return nil, err
	}
	return parseOrder(raw)
}

// GetOrder fetches the current state of a gateway order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	raw, err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(orderID), nil, "")
	if err != nil {
		return nil, err
	}
	return parseOrder(raw)
}

// CreateOrder opens a CAPTURE-intent order and returns the buyer approval
// link.
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreatedOrder, error) {
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	unit := purchaseUnit{
		ReferenceID: in.ReferenceID,
		Amount: unitAmount{
			CurrencyCode: currency,
			Value:        in.Total,
			Breakdown: &breakdown{
				ItemTotal: money{CurrencyCode: currency, Value: in.ItemTotal},
			},
		},
	}
	if in.Shipping != "" {
		unit.Amount.Breakdown.Shipping = &money{CurrencyCode: currency, Value: in.Shipping}
	}
	if in.Discount != "" && in.Discount != "0.00" {
		unit.Amount.Breakdown.Discount = &money{CurrencyCode: currency, Value: in.Discount}
	}
	for _, it := range in.Items {
		unit.Items = append(unit.Items, itemPayload{
			Name:       truncate(it.Name, 127),
			SKU:        truncate(it.SKU, 127),
			Quantity:   strconv.Itoa(it.Quantity),
			UnitAmount: money{CurrencyCode: currency, Value: it.UnitPrice},
		})
	}

	appCtx := &applicationContext{
		ReturnURL:          in.ReturnURL,
		CancelURL:          in.CancelURL,
		ShippingPreference: "NO_SHIPPING",
		UserAction:         "PAY_NOW",
	}
	if in.ShipTo != nil {
		s := &shipping{}
		s.Name.FullName = in.ShipTo.FullName
		s.Address.AddressLine1 = in.ShipTo.Address1
		s.Address.AddressLine2 = in.ShipTo.Address2
		s.Address.AdminArea2 = in.ShipTo.City
		s.Address.AdminArea1 = in.ShipTo.State
		s.Address.PostalCode = in.ShipTo.PostalCode
		s.Address.CountryCode = in.ShipTo.Country
		unit.Shipping = s
		appCtx.ShippingPreference = "SET_PROVIDED_ADDRESS"
	}

	body, err := json.Marshal(createOrderRequest{
		Intent:             "CAPTURE",
		PurchaseUnits:      []purchaseUnit{unit},
		ApplicationContext: appCtx,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, "")
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode paypal order: %w", err)
	}
	out := &CreatedOrder{ID: resp.ID, Status: resp.Status}
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.ApproveURL = l.Href
			break
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, requestID string) ([]byte, error) {
	token, err := c.ObtainAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized {
			c.invalidateToken()
		}
		ce := &CaptureError{StatusCode: resp.StatusCode, Body: string(raw)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Details) > 0 {
			ce.Issue = er.Details[0].Issue
		}
		c.logger.Warn("PayPal request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("issue", ce.Issue),
			zap.String("debug_id", resp.Header.Get("Paypal-Debug-Id")),
		)
		return nil, ce
	}
	return raw, nil
}

func parseOrder(raw []byte) (*CaptureResult, error) {
	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode paypal order: %w", err)
	}
	res := &CaptureResult{
		OrderID:    resp.ID,
		Status:     resp.Status,
		PayerEmail: resp.Payer.EmailAddress,
		Raw:        json.RawMessage(raw),
	}
	for _, pu := range resp.PurchaseUnits {
		if len(pu.Payments.Captures) > 0 {
			capture := pu.Payments.Captures[0]
			res.CaptureID = capture.ID
			res.Amount = capture.Amount.Value
			res.Currency = capture.Amount.CurrencyCode
			break
		}
	}
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
