package paypal

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError means the client cannot talk to the gateway because
// server-side configuration is missing. It is never retried.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("paypal: missing configuration: %s", strings.Join(e.Missing, ", "))
}

// GatewayAuthError means the gateway rejected the client credentials.
type GatewayAuthError struct {
	StatusCode int
	Body       string
}

func (e *GatewayAuthError) Error() string {
	return fmt.Sprintf("paypal: authentication failed (status %d)", e.StatusCode)
}

// CaptureError carries a non-success gateway response to an order call.
// Body is the raw response body for support triage.
type CaptureError struct {
	StatusCode int
	Issue      string
	Body       string
}

func (e *CaptureError) Error() string {
	if e.Issue != "" {
		return fmt.Sprintf("paypal: request failed with status %d (%s)", e.StatusCode, e.Issue)
	}
	return fmt.Sprintf("paypal: request failed with status %d", e.StatusCode)
}

const issueAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// IsAlreadyCaptured reports whether err says the gateway order was
// captured by an earlier call.
func IsAlreadyCaptured(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce) && ce.Issue == issueAlreadyCaptured
}
