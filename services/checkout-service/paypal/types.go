package paypal

import "encoding/json"

const (
	StatusCompleted = "COMPLETED"
	StatusApproved  = "APPROVED"
)

// CaptureResult is the uniform view of a captured gateway order.
type CaptureResult struct {
	OrderID    string
	Status     string
	PayerEmail string
	CaptureID  string
	Amount     string
	Currency   string
	Raw        json.RawMessage
}

// LineItem is one item shown to the buyer on the approval page.
type LineItem struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice string
}

// Shipping is the address forwarded to the gateway.
type Shipping struct {
	FullName   string
	Address1   string
	Address2   string
	City       string
	State      string
	PostalCode string
	Country    string
}

// CreateOrderInput describes a checkout to open on the gateway. All
// amounts are two-decimal strings and must add up.
type CreateOrderInput struct {
	ReferenceID string
	Currency    string
	ItemTotal   string
	Shipping    string
	Discount    string
	Total       string
	Items       []LineItem
	ShipTo      *Shipping
	ReturnURL   string
	CancelURL   string
}

// CreatedOrder is a gateway order awaiting buyer approval.
type CreatedOrder struct {
	ID         string
	Status     string
	ApproveURL string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount money  `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []link `json:"links"`
}

type errorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

type createOrderRequest struct {
	Intent             string              `json:"intent"`
	PurchaseUnits      []purchaseUnit      `json:"purchase_units"`
	ApplicationContext *applicationContext `json:"application_context,omitempty"`
}

type purchaseUnit struct {
	ReferenceID string        `json:"reference_id,omitempty"`
	Amount      unitAmount    `json:"amount"`
	Items       []itemPayload `json:"items,omitempty"`
	Shipping    *shipping     `json:"shipping,omitempty"`
}

type unitAmount struct {
	CurrencyCode string     `json:"currency_code"`
	Value        string     `json:"value"`
	Breakdown    *breakdown `json:"breakdown,omitempty"`
}

type breakdown struct {
	ItemTotal money  `json:"item_total"`
	Shipping  *money `json:"shipping,omitempty"`
	Discount  *money `json:"discount,omitempty"`
}

type itemPayload struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Quantity   string `json:"quantity"`
	UnitAmount money  `json:"unit_amount"`
}

type shipping struct {
	Name struct {
		FullName string `json:"full_name"`
	} `json:"name"`
	Address struct {
		AddressLine1 string `json:"address_line_1"`
		AddressLine2 string `json:"address_line_2,omitempty"`
		AdminArea2   string `json:"admin_area_2"`
		AdminArea1   string `json:"admin_area_1"`
		PostalCode   string `json:"postal_code"`
		CountryCode  string `json:"country_code"`
	} `json:"address"`
}

type applicationContext struct {
	ReturnURL          string `json:"return_url,omitempty"`
	CancelURL          string `json:"cancel_url,omitempty"`
	ShippingPreference string `json:"shipping_preference,omitempty"`
	UserAction         string `json:"user_action,omitempty"`
}
