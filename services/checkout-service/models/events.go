package models

import "time"

const EventOrderCreated = "order_created"

// OrderCreatedEvent is published to SNS after an order is written.
type OrderCreatedEvent struct {
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerID    string    `json:"customer_id,omitempty"`
	Email         string    `json:"email"`
	PaymentMethod string    `json:"payment_method"`
	Total         string    `json:"total"`
	ItemCount     int       `json:"item_count"`
	GiftCards     int       `json:"gift_cards"`
	Timestamp     time.Time `json:"timestamp"`
}
